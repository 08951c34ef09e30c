package device

import "errors"

// Domain errors for the device package.
//
//	if errors.Is(err, device.ErrStateUnset) {
//	    // nothing persisted yet
//	}
var (
	// ErrInvalidState is returned when a value is not OFF, ON or ON-PULSE.
	ErrInvalidState = errors.New("device: invalid state")

	// ErrStateUnset is returned by Store.Read before the first Write.
	ErrStateUnset = errors.New("device: state not set")
)
