package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-actuator/internal/device"
	"github.com/nerrad567/gray-logic-actuator/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-actuator/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-actuator/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-actuator/internal/liveness"
	"github.com/nerrad567/gray-logic-actuator/internal/registration"
	"github.com/nerrad567/gray-logic-actuator/migrations"
)

// memStore is an in-memory device.Store.
type memStore struct {
	mu  sync.Mutex
	st  device.State
	set bool
	err error
}

func (m *memStore) Read(_ context.Context) (device.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	if !m.set {
		return "", device.ErrStateUnset
	}
	return m.st, nil
}

func (m *memStore) Write(_ context.Context, st device.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st, m.set = st, true
	return nil
}

type fakeLiveness struct {
	counter *liveness.Counter
}

func (f fakeLiveness) State() liveness.State       { return liveness.StateWatching }
func (f fakeLiveness) Counter() *liveness.Counter { return f.counter }

type checkFunc func(ctx context.Context) error

func (f checkFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

func testLogger() *logging.Logger {
	return logging.NewWithWriter(config.LoggingConfig{Level: "error", Format: "text"}, "test", io.Discard)
}

func testDeps() Deps {
	return Deps{
		Config: config.APIConfig{
			Host:     "127.0.0.1",
			Port:     0,
			Timeouts: config.APITimeoutConfig{Read: 5, Write: 5, Idle: 5},
		},
		WS: config.WebSocketConfig{
			MaxMessageSize: 4096,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logger:   testLogger(),
		Store:    &memStore{},
		DeviceID: 7,
		Version:  "test",
	}
}

// testServer creates a Server with an in-memory store.
func testServer(t *testing.T, mutate func(*Deps)) *Server {
	t.Helper()

	deps := testDeps()
	if mutate != nil {
		mutate(&deps)
	}
	srv, err := New(deps)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return srv
}

// setupTestDB opens an in-memory database with the actuator schema applied.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := database.Open(config.DatabaseConfig{Path: database.MemoryPath})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if err := db.Migrate(context.Background(), migrations.FS); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return db.DB
}

func serve(t *testing.T, srv *Server, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	w := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal %q: %v", w.Body.String(), err)
	}
	return resp
}

// ─── Construction ──────────────────────────────────────────────────

func TestNew_RequiresDeps(t *testing.T) {
	deps := testDeps()
	deps.Logger = nil
	if _, err := New(deps); err == nil {
		t.Error("New() without logger should fail")
	}

	deps = testDeps()
	deps.Store = nil
	if _, err := New(deps); err == nil {
		t.Error("New() without store should fail")
	}
}

// ─── Health Endpoint Tests ─────────────────────────────────────────

func TestHealth(t *testing.T) {
	counter := liveness.NewCounter()
	counter.Advance(60)
	counter.Advance(60)

	srv := testServer(t, func(d *Deps) {
		d.Liveness = fakeLiveness{counter: counter}
		d.Checks = map[string]HealthChecker{
			"database": checkFunc(func(context.Context) error { return nil }),
		}
	})

	w := serve(t, srv, "/api/v1/health")
	if w.Code != http.StatusOK {
		t.Errorf("health status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	resp := decode(t, w)
	if resp["status"] != "ok" {
		t.Errorf("status = %v, want ok", resp["status"])
	}
	if resp["version"] != "test" {
		t.Errorf("version = %v, want test", resp["version"])
	}
	if resp["device_id"] != float64(7) {
		t.Errorf("device_id = %v, want 7", resp["device_id"])
	}

	live, ok := resp["liveness"].(map[string]any)
	if !ok {
		t.Fatalf("liveness missing: %v", resp)
	}
	if live["counter"] != float64(2) || live["state"] != string(liveness.StateWatching) {
		t.Errorf("liveness = %v", live)
	}
}

func TestHealth_Degraded(t *testing.T) {
	srv := testServer(t, func(d *Deps) {
		d.Checks = map[string]HealthChecker{
			"mqtt": checkFunc(func(context.Context) error { return errors.New("not connected") }),
		}
	})

	w := serve(t, srv, "/api/v1/health")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("health status = %d, want 503", w.Code)
	}

	resp := decode(t, w)
	if resp["status"] != "degraded" {
		t.Errorf("status = %v, want degraded", resp["status"])
	}
	checks, _ := resp["checks"].(map[string]any) //nolint:errcheck // nil map fails below
	if checks["mqtt"] != "not connected" {
		t.Errorf("checks = %v", checks)
	}
}

// ─── Middleware Tests ──────────────────────────────────────────────

func TestRequestID_Generated(t *testing.T) {
	w := serve(t, testServer(t, nil), "/api/v1/health")
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header to be set")
	}
}

func TestRequestID_PreservesClient(t *testing.T) {
	srv := testServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "client-123")
	w := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(w, req)

	if got := w.Header().Get("X-Request-ID"); got != "client-123" {
		t.Errorf("X-Request-ID = %q, want %q", got, "client-123")
	}
}

func TestNotFound(t *testing.T) {
	w := serve(t, testServer(t, nil), "/api/v1/nonexistent")
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown route status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv := testServer(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/state", strings.NewReader("ON"))
	w := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST /state status = %d, want 405", w.Code)
	}
}

// ─── State Tests ───────────────────────────────────────────────────

func TestGetState(t *testing.T) {
	store := &memStore{}
	srv := testServer(t, func(d *Deps) { d.Store = store })

	if w := serve(t, srv, "/api/v1/state"); w.Code != http.StatusNotFound {
		t.Errorf("unset state status = %d, want 404", w.Code)
	}

	store.Write(context.Background(), device.StatePulse) //nolint:errcheck // memStore never fails

	w := serve(t, srv, "/api/v1/state")
	if w.Code != http.StatusOK {
		t.Fatalf("state status = %d, want 200", w.Code)
	}
	resp := decode(t, w)
	if resp["state"] != "ON-PULSE" || resp["on"] != true {
		t.Errorf("state response = %v", resp)
	}
}

func TestGetState_ReadError(t *testing.T) {
	srv := testServer(t, func(d *Deps) { d.Store = &memStore{err: errors.New("disk gone")} })

	if w := serve(t, srv, "/api/v1/state"); w.Code != http.StatusInternalServerError {
		t.Errorf("state status = %d, want 500", w.Code)
	}
}

// ─── History Tests ─────────────────────────────────────────────────

func TestGetHistory(t *testing.T) {
	db := setupTestDB(t)
	repo := device.NewSQLiteStateHistoryRepository(db)
	ctx := context.Background()

	base := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	for i, st := range []device.State{device.StateOn, device.StatePulse, device.StateOff} {
		change := device.StateChange{State: st, Source: device.SourceCommand, At: base.Add(time.Duration(i) * time.Second)}
		if err := repo.RecordStateChange(ctx, change); err != nil {
			t.Fatalf("RecordStateChange: %v", err)
		}
	}

	srv := testServer(t, func(d *Deps) { d.History = repo })

	w := serve(t, srv, "/api/v1/history?limit=2")
	if w.Code != http.StatusOK {
		t.Fatalf("history status = %d, want 200: %s", w.Code, w.Body.String())
	}

	var resp struct {
		History []device.StateHistoryEntry `json:"history"`
		Count   int                        `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Count != 2 || len(resp.History) != 2 {
		t.Fatalf("count = %d, len = %d, want 2", resp.Count, len(resp.History))
	}
	if resp.History[0].State != device.StateOff {
		t.Errorf("newest = %q, want OFF", resp.History[0].State)
	}
}

func TestGetHistory_Errors(t *testing.T) {
	tests := []struct {
		name     string
		history  HistoryReader
		target   string
		wantCode int
	}{
		{"not configured", nil, "/api/v1/history", http.StatusServiceUnavailable},
		{"bad limit", device.NewSQLiteStateHistoryRepository(setupTestDB(t)), "/api/v1/history?limit=abc", http.StatusBadRequest},
		{"negative limit", device.NewSQLiteStateHistoryRepository(setupTestDB(t)), "/api/v1/history?limit=-1", http.StatusBadRequest},
		{"empty", device.NewSQLiteStateHistoryRepository(setupTestDB(t)), "/api/v1/history", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := testServer(t, func(d *Deps) { d.History = tt.history })
			if w := serve(t, srv, tt.target); w.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", w.Code, tt.wantCode)
			}
		})
	}
}

// ─── Registration Log Tests ────────────────────────────────────────

func TestListRegistrations(t *testing.T) {
	log := registration.NewSQLiteAttemptLog(setupTestDB(t))
	ctx := context.Background()

	if err := log.Record(ctx, registration.NewAttempt(registration.Response{}, registration.ErrUnreachable)); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := log.Record(ctx, registration.NewAttempt(registration.Response{ID: 7}, nil)); err != nil {
		t.Fatalf("Record: %v", err)
	}

	srv := testServer(t, func(d *Deps) { d.Attempts = log })

	w := serve(t, srv, "/api/v1/registrations")
	if w.Code != http.StatusOK {
		t.Fatalf("registrations status = %d, want 200", w.Code)
	}
	resp := decode(t, w)
	if resp["count"] != float64(2) {
		t.Errorf("count = %v, want 2", resp["count"])
	}

	srv = testServer(t, nil)
	if w := serve(t, srv, "/api/v1/registrations"); w.Code != http.StatusServiceUnavailable {
		t.Errorf("unconfigured status = %d, want 503", w.Code)
	}
}

// ─── Lifecycle + State Stream Tests ────────────────────────────────

func startServer(t *testing.T, mutate func(*Deps)) *Server {
	t.Helper()

	srv := testServer(t, mutate)
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	t.Cleanup(func() { srv.Close() }) //nolint:errcheck // Test cleanup
	return srv
}

func dialStream(t *testing.T, addr string) *websocket.Conn {
	t.Helper()

	ws, resp, err := websocket.DefaultDialer.Dial("ws://"+addr+"/api/v1/ws", nil)
	if err != nil {
		t.Fatalf("websocket dial failed: %v (resp: %v)", err, resp)
	}
	t.Cleanup(func() { ws.Close() }) //nolint:errcheck // Test cleanup
	return ws
}

func waitForSubscribers(t *testing.T, stream *StateStream, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for stream.Subscribers() != want {
		if time.Now().After(deadline) {
			t.Fatalf("stream subscribers = %d, want %d", stream.Subscribers(), want)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func readEvent(t *testing.T, ws *websocket.Conn) StateEvent {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(2 * time.Second)) //nolint:errcheck // Test deadline
	var ev StateEvent
	if err := ws.ReadJSON(&ev); err != nil {
		t.Fatalf("read event: %v", err)
	}
	return ev
}

func TestServer_StartClose(t *testing.T) {
	srv := testServer(t, nil)
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if err := srv.Start(context.Background()); err == nil {
		t.Error("second Start() should fail")
	}

	resp, err := http.Get("http://" + srv.Addr() + "/api/v1/health")
	if err != nil {
		t.Fatalf("GET health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d, want 200", resp.StatusCode)
	}

	if err := srv.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}
	if err := srv.Close(); err != nil {
		t.Errorf("second Close() error: %v", err)
	}
}

func TestStateStream_SnapshotOnConnect(t *testing.T) {
	store := &memStore{}
	store.Write(context.Background(), device.StateOn) //nolint:errcheck // memStore never fails
	srv := startServer(t, func(d *Deps) { d.Store = store })

	ws := dialStream(t, srv.Addr())

	ev := readEvent(t, ws)
	if ev.Event != EventStateSnapshot || ev.State != device.StateOn || ev.DeviceID != 7 {
		t.Errorf("first frame = %+v, want ON snapshot for device 7", ev)
	}
}

func TestStateStream_NoSnapshotWhenUnset(t *testing.T) {
	srv := startServer(t, nil)
	ws := dialStream(t, srv.Addr())
	waitForSubscribers(t, srv.Stream(), 1)

	srv.Stream().OnStateChange(context.Background(), device.StateChange{
		State: device.StateOff, Source: device.SourceRegistration, At: time.Now(),
	})

	if ev := readEvent(t, ws); ev.Event != EventStateChanged {
		t.Errorf("first frame event = %q, want %q", ev.Event, EventStateChanged)
	}
}

func TestStateStream_StateChanged(t *testing.T) {
	srv := startServer(t, nil)
	ws := dialStream(t, srv.Addr())
	waitForSubscribers(t, srv.Stream(), 1)

	at := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	changes := []device.StateChange{
		{State: device.StatePulse, Source: device.SourceCommand, At: at},
		{State: device.StateOff, Source: device.SourcePulse, At: at.Add(750 * time.Millisecond)},
	}
	for _, c := range changes {
		srv.Stream().OnStateChange(context.Background(), c)
	}

	for i, want := range changes {
		ev := readEvent(t, ws)
		if ev.Event != EventStateChanged || ev.DeviceID != 7 {
			t.Errorf("frame %d = %+v", i, ev)
		}
		if ev.State != want.State || ev.Source != want.Source || !ev.Timestamp.Equal(want.At) {
			t.Errorf("frame %d = %+v, want %+v", i, ev, want)
		}
	}
}

func TestStateStream_ClientFramesIgnored(t *testing.T) {
	srv := startServer(t, nil)
	ws := dialStream(t, srv.Addr())
	waitForSubscribers(t, srv.Stream(), 1)

	if err := ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"subscribe"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	srv.Stream().OnStateChange(context.Background(), device.StateChange{State: device.StateOn, Source: device.SourceCommand, At: time.Now()})

	if ev := readEvent(t, ws); ev.State != device.StateOn {
		t.Errorf("frame = %+v, want ON change", ev)
	}
	if n := srv.Stream().Subscribers(); n != 1 {
		t.Errorf("subscribers = %d, want 1", n)
	}
}

func TestStateStream_DisconnectRemovesSubscriber(t *testing.T) {
	srv := startServer(t, nil)
	ws := dialStream(t, srv.Addr())
	waitForSubscribers(t, srv.Stream(), 1)

	ws.Close() //nolint:errcheck // Closing early on purpose
	waitForSubscribers(t, srv.Stream(), 0)

	// Publishing with no subscribers is a no-op.
	srv.Stream().OnStateChange(context.Background(), device.StateChange{State: device.StateOff, At: time.Now()})
}

func TestServer_CloseDisconnectsClients(t *testing.T) {
	srv := testServer(t, nil)
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	ws := dialStream(t, srv.Addr())
	waitForSubscribers(t, srv.Stream(), 1)

	if err := srv.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	ws.SetReadDeadline(time.Now().Add(2 * time.Second)) //nolint:errcheck // Test deadline
	_, _, err := ws.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Errorf("read after Close() = %v, want going-away close frame", err)
	}
	if n := srv.Stream().Subscribers(); n != 0 {
		t.Errorf("subscribers after Close() = %d, want 0", n)
	}
}

func TestStateStream_ClosedRefusesSubscribers(t *testing.T) {
	stream := NewStateStream(testDeps().WS, 7, testLogger())
	stream.Close()

	if stream.add(&subscriber{out: make(chan []byte, 1)}, nil) {
		t.Error("add() after Close() = true, want false")
	}
}
