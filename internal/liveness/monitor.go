package liveness

import (
	"context"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-actuator/internal/registration"
)

// State is the monitor's lifecycle state.
type State string

const (
	StateWatching      State = "WATCHING"
	StateReregistering State = "REREGISTERING"
)

const defaultTimeoutTicks = 60

// Registrar performs one registration round trip.
// *registration.Client satisfies it.
type Registrar interface {
	Register(ctx context.Context, req registration.Request) (registration.Response, error)
}

// Logger defines the logging interface used by the monitor.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Config tunes the monitor.
type Config struct {
	// TickInterval is the loop period.
	TickInterval time.Duration

	// TimeoutTicks is the silence threshold; re-registration happens once
	// the counter exceeds it.
	TimeoutTicks int

	// RetryBackoff is the extra wait after a failed re-registration.
	RetryBackoff time.Duration
}

// Outcome reports one re-registration attempt.
type Outcome struct {
	Response registration.Response
	Err      error
	At       time.Time
}

// Monitor re-registers with the coordinator after prolonged silence.
//
// Re-registration replies never change the device state; the coordinator
// already knows it from the commands it sent.
type Monitor struct {
	counter   *Counter
	registrar Registrar
	request   registration.Request
	cfg       Config
	logger    Logger

	mu        sync.RWMutex
	state     State
	onOutcome func(context.Context, Outcome)
	onTick    func(context.Context, int64)
}

// NewMonitor creates a monitor in the WATCHING state.
// Zero config values fall back to a 1s tick, 60 tick timeout and a backoff
// one tick short of the timeout window.
func NewMonitor(counter *Counter, registrar Registrar, req registration.Request, cfg Config) *Monitor {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if cfg.TimeoutTicks <= 0 {
		cfg.TimeoutTicks = defaultTimeoutTicks
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = time.Duration(max(cfg.TimeoutTicks-1, 1)) * cfg.TickInterval
	}

	return &Monitor{
		counter:   counter,
		registrar: registrar,
		request:   req,
		cfg:       cfg,
		logger:    noopLogger{},
		state:     StateWatching,
	}
}

// SetLogger sets the logger for the monitor.
func (m *Monitor) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	m.logger = logger
}

// SetOutcomeHandler registers a callback invoked after every
// re-registration attempt. It runs on the monitor goroutine.
func (m *Monitor) SetOutcomeHandler(fn func(context.Context, Outcome)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onOutcome = fn
}

// SetTickHandler registers a callback invoked with the counter value after
// every tick that did not re-register.
func (m *Monitor) SetTickHandler(fn func(context.Context, int64)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onTick = fn
}

// State returns the current lifecycle state.
func (m *Monitor) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Counter returns the shared tick counter.
func (m *Monitor) Counter() *Counter {
	return m.counter
}

// Touch records inbound traffic. Safe to call from any goroutine.
func (m *Monitor) Touch() {
	m.counter.Reset()
}

// Tick performs one monitor step.
//
// Returns:
//   - attempted: true if a re-registration was made this tick
//   - err: the re-registration error, nil on success or when not attempted
func (m *Monitor) Tick(ctx context.Context) (attempted bool, err error) {
	ticks, advanced := m.counter.Advance(int64(m.cfg.TimeoutTicks))
	if advanced {
		m.mu.RLock()
		onTick := m.onTick
		m.mu.RUnlock()
		if onTick != nil {
			onTick(ctx, ticks)
		}
		return false, nil
	}

	m.setState(StateReregistering)
	defer m.setState(StateWatching)

	m.logger.Info("coordinator silent, re-registering", "ticks", ticks, "timeout_ticks", m.cfg.TimeoutTicks)

	resp, err := m.registrar.Register(ctx, m.request)
	if err == nil {
		m.counter.Reset()
		m.logger.Info("re-registered with coordinator", "id", resp.ID)
	} else {
		m.logger.Warn("re-registration failed", "error", err, "retry_in", m.cfg.RetryBackoff)
	}

	m.mu.RLock()
	onOutcome := m.onOutcome
	m.mu.RUnlock()
	if onOutcome != nil {
		onOutcome(ctx, Outcome{Response: resp, Err: err, At: time.Now()})
	}

	return true, err
}

// Run ticks until ctx is cancelled. It always returns nil; network failures
// are logged and retried.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.TickInterval)
	defer ticker.Stop()

	m.logger.Info("liveness monitor started",
		"tick_interval", m.cfg.TickInterval,
		"timeout_ticks", m.cfg.TimeoutTicks,
	)

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("liveness monitor stopped")
			return nil
		case <-ticker.C:
		}

		attempted, err := m.Tick(ctx)
		if !attempted || err == nil {
			continue
		}

		backoff := time.NewTimer(m.cfg.RetryBackoff)
		select {
		case <-ctx.Done():
			backoff.Stop()
			m.logger.Info("liveness monitor stopped")
			return nil
		case <-backoff.C:
		}
		ticker.Reset(m.cfg.TickInterval)
	}
}

func (m *Monitor) setState(s State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = s
}
