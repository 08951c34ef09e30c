package mqtt

import (
	"encoding/json"
	"time"
)

// StateMessage is the retained payload of the state topic.
type StateMessage struct {
	DeviceID  int64  `json:"device_id"`
	State     string `json:"state"`
	Source    string `json:"source"`
	Timestamp string `json:"timestamp"`
}

// NewStateMessage encodes a state message.
func NewStateMessage(deviceID int64, state, source string, at time.Time) ([]byte, error) {
	return json.Marshal(StateMessage{
		DeviceID:  deviceID,
		State:     state,
		Source:    source,
		Timestamp: at.UTC().Format(time.RFC3339Nano),
	})
}
