package device

import (
	"errors"
	"testing"
)

func TestParseState(t *testing.T) {
	tests := []struct {
		input   string
		want    State
		wantErr bool
	}{
		{"ON", StateOn, false},
		{"OFF", StateOff, false},
		{"ON-PULSE", StatePulse, false},
		{"on", "", true},
		{" ON", "", true},
		{"TOGGLE", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseState(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidState) {
					t.Errorf("ParseState(%q) error = %v, want ErrInvalidState", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseState(%q) error = %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseState(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestFromBool(t *testing.T) {
	if FromBool(true) != StateOn {
		t.Error("FromBool(true) should be ON")
	}
	if FromBool(false) != StateOff {
		t.Error("FromBool(false) should be OFF")
	}
}

func TestState_IsOn(t *testing.T) {
	if !StateOn.IsOn() || !StatePulse.IsOn() {
		t.Error("ON and ON-PULSE should report IsOn")
	}
	if StateOff.IsOn() {
		t.Error("OFF should not report IsOn")
	}
}
