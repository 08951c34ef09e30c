package device

import (
	"fmt"
	"time"
)

// State is the actuator's output state.
type State string

// The only states an actuator can be in.
const (
	StateOff   State = "OFF"
	StateOn    State = "ON"
	StatePulse State = "ON-PULSE"
)

// ParseState converts a wire or stored value into a State.
// The match is exact; "on" or " ON" are rejected.
func ParseState(s string) (State, error) {
	switch State(s) {
	case StateOff, StateOn, StatePulse:
		return State(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidState, s)
	}
}

// FromBool maps the coordinator's boolean state to ON or OFF.
func FromBool(on bool) State {
	if on {
		return StateOn
	}
	return StateOff
}

// IsOn reports whether the output is energised (ON or ON-PULSE).
func (s State) IsOn() bool {
	return s == StateOn || s == StatePulse
}

// String returns the wire representation.
func (s State) String() string {
	return string(s)
}

// State change sources recorded in history and published to observers.
const (
	SourceCommand      = "command"
	SourcePulse        = "pulse"
	SourceRegistration = "registration"
	SourceMQTT         = "mqtt"
)

// StateChange describes one applied write.
type StateChange struct {
	State  State     `json:"state"`
	Source string    `json:"source"`
	At     time.Time `json:"timestamp"`
}
