package device

import (
	"sync"
	"time"
)

// PulseTimer schedules the ON-PULSE -> OFF revert.
//
// Every Arm or Supersede starts a new generation. A revert only runs if its
// generation is still current when the timer fires, and the check and the
// revert happen under the timer's lock, so a command applied concurrently
// cannot be overwritten by a stale pulse.
type PulseTimer struct {
	mu             sync.Mutex
	duration       time.Duration
	generation     uint64
	timer          *time.Timer
	lastWriterWins bool
	stopped        bool
}

// PulseOption configures a PulseTimer.
type PulseOption func(*PulseTimer)

// WithLastWriterWins makes every armed timer write OFF when it fires,
// regardless of later commands. Matches actuators that never cancel
// pending pulses.
func WithLastWriterWins() PulseOption {
	return func(p *PulseTimer) {
		p.lastWriterWins = true
	}
}

// NewPulseTimer creates a timer that reverts after d.
func NewPulseTimer(d time.Duration, opts ...PulseOption) *PulseTimer {
	p := &PulseTimer{duration: d}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Arm runs apply and schedules revert after the pulse duration.
// Any previously armed revert is invalidated.
func (p *PulseTimer) Arm(apply, revert func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	gen := p.bumpLocked()
	apply()

	p.timer = time.AfterFunc(p.duration, func() {
		p.mu.Lock()
		defer p.mu.Unlock()

		if p.stopped {
			return
		}
		if !p.lastWriterWins && gen != p.generation {
			return
		}
		revert()
		if gen == p.generation {
			p.timer = nil
		}
	})
}

// Supersede runs apply and invalidates any armed revert.
func (p *PulseTimer) Supersede(apply func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.bumpLocked()
	apply()
}

// Armed reports whether a revert is pending for the current generation.
func (p *PulseTimer) Armed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.timer != nil
}

// Stop cancels any pending revert. Later Arm calls are still honoured but
// their reverts never run.
func (p *PulseTimer) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopped = true
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}

// bumpLocked starts a new generation. Callers must hold p.mu.
func (p *PulseTimer) bumpLocked() uint64 {
	p.generation++
	if p.timer != nil && !p.lastWriterWins {
		p.timer.Stop()
	}
	p.timer = nil
	return p.generation
}
