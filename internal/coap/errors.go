package coap

import "errors"

var (
	// ErrServerRunning is returned when Start is called twice.
	ErrServerRunning = errors.New("coap: server already running")

	// ErrErrorResponse is returned by Client.Post for 4.xx and 5.xx replies.
	ErrErrorResponse = errors.New("coap: error response")
)
