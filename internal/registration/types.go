package registration

import (
	"encoding/json"
	"fmt"
)

// Request is the payload sent to the coordinator.
// It is built once at startup and reused for every re-registration.
type Request struct {
	IPAddress string `json:"ip_address"`
	Port      int    `json:"port"`
	Online    bool   `json:"online"`
	State     bool   `json:"state"`
	Pulse     bool   `json:"pulse"`
}

// NewRequest builds the announcement for an actuator that is online and
// reports itself OFF.
func NewRequest(ip string, port int, pulse bool) Request {
	return Request{
		IPAddress: ip,
		Port:      port,
		Online:    true,
		State:     false,
		Pulse:     pulse,
	}
}

// Response is the coordinator's acknowledgment.
type Response struct {
	// ID is the device id assigned by the coordinator.
	ID int64 `json:"id"`

	// State is the initial output state (true = ON).
	State bool `json:"state"`
}

// rejectedPayload is the coordinator's refusal.
const rejectedPayload = "KO"

// parseResponse decodes a reply body. Both fields are required and must
// have the right JSON type.
func parseResponse(body []byte) (Response, error) {
	var raw struct {
		ID    json.RawMessage `json:"id"`
		State *bool           `json:"state"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return Response{}, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	if raw.ID == nil || string(raw.ID) == "null" || raw.State == nil {
		return Response{}, fmt.Errorf("%w: missing id or state in %q", ErrMalformedResponse, body)
	}

	var id int64
	if err := json.Unmarshal(raw.ID, &id); err != nil {
		return Response{}, fmt.Errorf("%w: id %s is not an integer", ErrMalformedResponse, raw.ID)
	}
	return Response{ID: id, State: *raw.State}, nil
}
