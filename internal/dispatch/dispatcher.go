package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-actuator/internal/device"
)

// Methods understood by the dispatcher. Transports pass through their own
// method names; anything else is answered with KO.
const (
	MethodGet  = "GET"
	MethodPost = "POST"
)

// ReplyKO is returned for every rejected request.
var ReplyKO = []byte("KO")

// Request is one inbound command.
type Request struct {
	Method  string
	Payload []byte

	// Source is recorded with the resulting state change.
	// Empty means device.SourceCommand.
	Source string
}

// Toucher is notified of every inbound request. *liveness.Monitor
// satisfies it.
type Toucher interface {
	Touch()
}

// Observer is told about every state write that succeeded.
type Observer interface {
	OnStateChange(ctx context.Context, change device.StateChange)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, change device.StateChange)

// OnStateChange calls f.
func (f ObserverFunc) OnStateChange(ctx context.Context, change device.StateChange) {
	f(ctx, change)
}

// Logger defines the logging interface used by the dispatcher.
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

// Dispatcher applies commands to the store through the pulse timer.
type Dispatcher struct {
	store    device.Store
	pulse    *device.PulseTimer
	liveness Toucher
	logger   Logger

	mu        sync.RWMutex
	observers []Observer
}

// New creates a dispatcher. liveness may be nil.
func New(store device.Store, pulse *device.PulseTimer, liveness Toucher) *Dispatcher {
	return &Dispatcher{
		store:    store,
		pulse:    pulse,
		liveness: liveness,
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the dispatcher.
func (d *Dispatcher) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	d.logger = logger
}

// AddObserver registers an observer for state changes.
func (d *Dispatcher) AddObserver(o Observer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.observers = append(d.observers, o)
}

// Handle processes one request and returns the reply payload.
//
// A failed write is logged and the command is still echoed: the reply
// acknowledges the command, not its persistence.
func (d *Dispatcher) Handle(ctx context.Context, req Request) []byte {
	if d.liveness != nil {
		d.liveness.Touch()
	}

	reply := d.handle(ctx, req)
	d.logger.Info("command handled",
		"method", req.Method,
		"payload", string(req.Payload),
		"reply", string(reply),
	)
	return reply
}

func (d *Dispatcher) handle(ctx context.Context, req Request) []byte {
	switch req.Method {
	case MethodGet:
		st, err := d.store.Read(ctx)
		if err != nil {
			d.logger.Error("reading state failed", "error", err)
			return ReplyKO
		}
		return []byte(st)

	case MethodPost:
		st, err := device.ParseState(string(req.Payload))
		if err != nil {
			return ReplyKO
		}
		source := req.Source
		if source == "" {
			source = device.SourceCommand
		}
		d.set(ctx, st, source)
		return []byte(st)

	default:
		return ReplyKO
	}
}

// Seed writes the initial state from the coordinator's acknowledgment.
func (d *Dispatcher) Seed(ctx context.Context, st device.State) error {
	var err error
	d.pulse.Supersede(func() {
		err = d.apply(ctx, st, device.SourceRegistration)
	})
	return err
}

// Stop cancels any pending pulse revert.
func (d *Dispatcher) Stop() {
	d.pulse.Stop()
}

func (d *Dispatcher) set(ctx context.Context, st device.State, source string) {
	if st != device.StatePulse {
		d.pulse.Supersede(func() {
			d.apply(ctx, st, source) //nolint:errcheck // Logged in apply
		})
		return
	}

	d.pulse.Arm(
		func() {
			d.apply(ctx, device.StatePulse, source) //nolint:errcheck // Logged in apply
		},
		func() {
			// The request context is long gone when the pulse ends.
			d.apply(context.Background(), device.StateOff, device.SourcePulse) //nolint:errcheck // Logged in apply
		},
	)
}

// apply writes st and notifies observers on success.
func (d *Dispatcher) apply(ctx context.Context, st device.State, source string) error {
	if err := d.store.Write(ctx, st); err != nil {
		d.logger.Error("writing state failed", "state", st, "source", source, "error", err)
		return err
	}

	change := device.StateChange{State: st, Source: source, At: time.Now().UTC()}

	d.mu.RLock()
	observers := d.observers
	d.mu.RUnlock()

	for _, o := range observers {
		o.OnStateChange(ctx, change)
	}
	return nil
}
