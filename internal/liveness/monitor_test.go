package liveness

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-actuator/internal/registration"
)

// fakeRegistrar counts calls and returns a configurable result.
type fakeRegistrar struct {
	calls atomic.Int32
	mu    sync.Mutex
	err   error
	seen  []registration.Request
}

func (f *fakeRegistrar) Register(_ context.Context, req registration.Request) (registration.Response, error) {
	f.calls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, req)
	if f.err != nil {
		return registration.Response{}, f.err
	}
	return registration.Response{ID: 7, State: true}, nil
}

func (f *fakeRegistrar) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

var testRequest = registration.NewRequest("10.0.0.2", 5684, true)

func TestMonitor_ReregistersExactlyOnceAfterThreshold(t *testing.T) {
	reg := &fakeRegistrar{}
	counter := NewCounter()
	m := NewMonitor(counter, reg, testRequest, Config{TickInterval: time.Millisecond, TimeoutTicks: 60})
	ctx := context.Background()

	// Ticks 1..61 only increment: the counter must exceed 60 first.
	for i := 0; i < 61; i++ {
		attempted, _ := m.Tick(ctx)
		if attempted {
			t.Fatalf("re-registered early at tick %d (counter %d)", i+1, counter.Load())
		}
	}
	if counter.Load() != 61 {
		t.Fatalf("counter = %d, want 61", counter.Load())
	}

	attempted, err := m.Tick(ctx)
	if !attempted || err != nil {
		t.Fatalf("Tick() = (%v, %v), want (true, nil)", attempted, err)
	}
	if reg.calls.Load() != 1 {
		t.Errorf("registrar calls = %d, want 1", reg.calls.Load())
	}
	if counter.Load() != 0 {
		t.Errorf("counter after success = %d, want 0", counter.Load())
	}
	if m.State() != StateWatching {
		t.Errorf("State() = %s, want WATCHING", m.State())
	}
	if reg.seen[0] != testRequest {
		t.Errorf("re-registration sent %+v, want the startup request", reg.seen[0])
	}
}

func TestMonitor_TouchPreventsReregistration(t *testing.T) {
	reg := &fakeRegistrar{}
	m := NewMonitor(NewCounter(), reg, testRequest, Config{TimeoutTicks: 5})
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		if i%4 == 0 {
			m.Touch()
		}
		m.Tick(ctx) //nolint:errcheck // Never attempts here
	}
	if reg.calls.Load() != 0 {
		t.Errorf("registrar calls = %d, want 0", reg.calls.Load())
	}
}

func TestMonitor_FailureKeepsCounter(t *testing.T) {
	reg := &fakeRegistrar{err: registration.ErrUnreachable}
	counter := NewCounter()
	m := NewMonitor(counter, reg, testRequest, Config{TimeoutTicks: 2})

	var outcomes []Outcome
	m.SetOutcomeHandler(func(_ context.Context, o Outcome) {
		outcomes = append(outcomes, o)
	})

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		m.Tick(ctx) //nolint:errcheck // Below threshold
	}

	attempted, err := m.Tick(ctx)
	if !attempted || !errors.Is(err, registration.ErrUnreachable) {
		t.Fatalf("Tick() = (%v, %v), want (true, ErrUnreachable)", attempted, err)
	}
	if counter.Load() != 3 {
		t.Errorf("counter after failure = %d, want 3 (unchanged)", counter.Load())
	}
	if m.State() != StateWatching {
		t.Errorf("State() = %s, want WATCHING", m.State())
	}
	if len(outcomes) != 1 || !errors.Is(outcomes[0].Err, registration.ErrUnreachable) {
		t.Errorf("outcomes = %+v, want one unreachable", outcomes)
	}

	// Still over threshold: the next tick retries.
	reg.setErr(nil)
	if attempted, err := m.Tick(ctx); !attempted || err != nil {
		t.Errorf("retry Tick() = (%v, %v), want (true, nil)", attempted, err)
	}
	if counter.Load() != 0 {
		t.Errorf("counter after retry success = %d, want 0", counter.Load())
	}
}

func TestMonitor_RejectedIsRecoverable(t *testing.T) {
	reg := &fakeRegistrar{err: registration.ErrRejected}
	m := NewMonitor(NewCounter(), reg, testRequest, Config{TimeoutTicks: 1})
	ctx := context.Background()

	m.Tick(ctx) //nolint:errcheck // 0 -> 1
	m.Tick(ctx) //nolint:errcheck // 1 -> 2
	if _, err := m.Tick(ctx); !errors.Is(err, registration.ErrRejected) {
		t.Errorf("Tick() error = %v, want ErrRejected", err)
	}
}

func TestMonitor_TickHandler(t *testing.T) {
	m := NewMonitor(NewCounter(), &fakeRegistrar{}, testRequest, Config{TimeoutTicks: 60})

	var last int64
	m.SetTickHandler(func(_ context.Context, n int64) { last = n })

	for i := 0; i < 3; i++ {
		m.Tick(context.Background()) //nolint:errcheck // Below threshold
	}
	if last != 3 {
		t.Errorf("tick handler saw %d, want 3", last)
	}
}

func TestMonitor_RunBacksOffAfterFailure(t *testing.T) {
	reg := &fakeRegistrar{err: registration.ErrUnreachable}
	m := NewMonitor(NewCounter(), reg, testRequest, Config{
		TickInterval: 2 * time.Millisecond,
		TimeoutTicks: 2,
		RetryBackoff: 200 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	// Threshold is reached after ~3 ticks; the backoff then holds off
	// the retry well past this window.
	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run() did not return after cancel")
	}

	if calls := reg.calls.Load(); calls != 1 {
		t.Errorf("registrar calls = %d, want 1 during backoff", calls)
	}
}

func TestMonitor_RunSucceedsRepeatedly(t *testing.T) {
	reg := &fakeRegistrar{}
	m := NewMonitor(NewCounter(), reg, testRequest, Config{
		TickInterval: time.Millisecond,
		TimeoutTicks: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	if err := m.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if reg.calls.Load() < 2 {
		t.Errorf("registrar calls = %d, want several re-registrations", reg.calls.Load())
	}
}

func TestMonitor_ConcurrentTouch(t *testing.T) {
	reg := &fakeRegistrar{}
	m := NewMonitor(NewCounter(), reg, testRequest, Config{
		TickInterval: time.Millisecond,
		TimeoutTicks: 1000,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		m.Run(ctx) //nolint:errcheck // Always nil
	}()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				m.Touch()
			}
		}()
	}
	wg.Wait()
	cancel()
	<-done

	if reg.calls.Load() != 0 {
		t.Errorf("registrar calls = %d, want 0", reg.calls.Load())
	}
}

func TestNewMonitor_Defaults(t *testing.T) {
	m := NewMonitor(NewCounter(), &fakeRegistrar{}, testRequest, Config{})
	if m.cfg.TickInterval != time.Second {
		t.Errorf("TickInterval = %v, want 1s", m.cfg.TickInterval)
	}
	if m.cfg.TimeoutTicks != 60 {
		t.Errorf("TimeoutTicks = %d, want 60", m.cfg.TimeoutTicks)
	}
	if m.cfg.RetryBackoff != 59*time.Second {
		t.Errorf("RetryBackoff = %v, want 59s", m.cfg.RetryBackoff)
	}
}
