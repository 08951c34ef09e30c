package registration

import "errors"

var (
	// ErrRejected is returned when the coordinator replies "KO".
	ErrRejected = errors.New("registration: rejected by coordinator")

	// ErrUnreachable is returned when the request could not be delivered or
	// no reply arrived in time.
	ErrUnreachable = errors.New("registration: coordinator unreachable")

	// ErrMalformedResponse is returned when the reply is neither "KO" nor a
	// JSON object with an integer id and a boolean state.
	ErrMalformedResponse = errors.New("registration: malformed response")

	// ErrInvalidEndpoint is returned by ParseEndpoint.
	ErrInvalidEndpoint = errors.New("registration: invalid endpoint")
)
