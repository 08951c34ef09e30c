package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-actuator/internal/device"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeNotFound(w, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, ErrCodeMethodNotAllow, "method not allowed")
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/state", s.handleGetState)
		r.Get("/history", s.handleGetHistory)
		r.Get("/registrations", s.handleListRegistrations)
		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// handleHealth reports the server version and the health of each configured
// infrastructure client. Any failing check turns the response into a 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK

	resp := map[string]any{
		"version":   s.version,
		"device_id": s.deviceID,
	}

	if len(s.checks) > 0 {
		checks := make(map[string]string, len(s.checks))
		for name, checker := range s.checks {
			if err := checker.HealthCheck(r.Context()); err != nil {
				checks[name] = err.Error()
				status = "degraded"
				code = http.StatusServiceUnavailable
				continue
			}
			checks[name] = "ok"
		}
		resp["checks"] = checks
	}

	if s.liveness != nil {
		resp["liveness"] = map[string]any{
			"state":   s.liveness.State(),
			"counter": s.liveness.Counter().Load(),
		}
	}

	resp["status"] = status
	writeJSON(w, code, resp)
}

// handleGetState returns the persisted device state.
func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	st, err := s.store.Read(r.Context())
	if errors.Is(err, device.ErrStateUnset) {
		writeNotFound(w, "state has not been written yet")
		return
	}
	if err != nil {
		s.logger.Error("reading state for API", "error", err)
		writeInternalError(w, "failed to read state")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"device_id": s.deviceID,
		"state":     st,
		"on":        st.IsOn(),
	})
}

// handleGetHistory returns recent state transitions, newest first.
func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "state history is not enabled")
		return
	}

	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	entries, err := s.history.GetHistory(r.Context(), limit)
	if err != nil {
		s.logger.Error("reading state history", "error", err)
		writeInternalError(w, "failed to read state history")
		return
	}
	if entries == nil {
		entries = []device.StateHistoryEntry{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"history": entries,
		"count":   len(entries),
	})
}

// handleListRegistrations returns recent registration attempts.
func (s *Server) handleListRegistrations(w http.ResponseWriter, r *http.Request) {
	if s.attempts == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "registration log is not enabled")
		return
	}

	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	attempts, err := s.attempts.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("reading registration log", "error", err)
		writeInternalError(w, "failed to read registration log")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"registrations": attempts,
		"count":         len(attempts),
	})
}

// parseLimit reads the optional ?limit= query parameter. Zero means the
// repository default; clamping is left to the repository.
func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		writeBadRequest(w, "limit must be a non-negative integer")
		return 0, false
	}
	return limit, true
}
