package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-actuator/internal/device"
	"github.com/nerrad567/gray-logic-actuator/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-actuator/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-actuator/internal/liveness"
	"github.com/nerrad567/gray-logic-actuator/internal/registration"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// HistoryReader lists recorded state transitions.
type HistoryReader interface {
	GetHistory(ctx context.Context, limit int) ([]device.StateHistoryEntry, error)
}

// AttemptReader lists recorded registration attempts.
type AttemptReader interface {
	Recent(ctx context.Context, limit int) ([]registration.Attempt, error)
}

// LivenessReader exposes the liveness monitor's view.
// *liveness.Monitor satisfies it.
type LivenessReader interface {
	State() liveness.State
	Counter() *liveness.Counter
}

// HealthChecker is implemented by infrastructure clients (database, MQTT,
// InfluxDB).
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Logger   *logging.Logger
	Store    device.Store
	History  HistoryReader  // optional
	Attempts AttemptReader  // optional
	Liveness LivenessReader // optional
	Checks   map[string]HealthChecker
	DeviceID int64
	Version  string
}

// Server is the diagnostics HTTP server.
type Server struct {
	cfg      config.APIConfig
	wsCfg    config.WebSocketConfig
	logger   *logging.Logger
	store    device.Store
	history  HistoryReader
	attempts AttemptReader
	liveness LivenessReader
	checks   map[string]HealthChecker
	deviceID int64
	version  string

	stream *StateStream

	mu     sync.Mutex
	server *http.Server
	addr   string
	done   chan struct{}
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("state store is required")
	}

	s := &Server{
		cfg:      deps.Config,
		wsCfg:    deps.WS,
		logger:   deps.Logger,
		store:    deps.Store,
		history:  deps.History,
		attempts: deps.Attempts,
		liveness: deps.Liveness,
		checks:   deps.Checks,
		deviceID: deps.DeviceID,
		version:  deps.Version,
		stream:   NewStateStream(deps.WS, deps.DeviceID, deps.Logger),
	}
	return s, nil
}

// Stream returns the WebSocket state stream, for registering as a dispatcher
// observer.
func (s *Server) Stream() *StateStream {
	return s.stream
}

// Start binds the listener and serves HTTP in a background goroutine.
//
// Binding happens before Start returns, so a port conflict is reported to the
// caller. The server can be stopped with Close().
func (s *Server) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return fmt.Errorf("api server already started")
	}

	ln, err := net.Listen("tcp", net.JoinHostPort(s.cfg.Host, fmt.Sprint(s.cfg.Port)))
	if err != nil {
		return fmt.Errorf("binding API listener: %w", err)
	}

	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}
	s.addr = ln.Addr().String()
	s.done = make(chan struct{})

	srv := s.server
	done := s.done
	go func() {
		defer close(done)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	s.logger.Info("API server started", "address", s.addr)
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	s.mu.Lock()
	srv, done := s.server, s.done
	s.server = nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}

	// Shutdown does not touch hijacked connections.
	s.stream.Close()

	ctx, stop := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer stop()

	s.logger.Info("API server shutting down")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	<-done
	return nil
}
