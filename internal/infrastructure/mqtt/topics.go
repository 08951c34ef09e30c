package mqtt

import "fmt"

// TopicPrefixActuator is the base for all actuator topics.
const TopicPrefixActuator = "graylogic/actuator"

// Topics builds the topics of one actuator.
//
//	topics := mqtt.NewTopics(7)
//	topics.State() // "graylogic/actuator/7/state"
type Topics struct {
	deviceID int64
}

// NewTopics returns the topic set for the coordinator-assigned device id.
func NewTopics(deviceID int64) Topics {
	return Topics{deviceID: deviceID}
}

// DeviceID returns the id the topics are built for.
func (t Topics) DeviceID() int64 {
	return t.deviceID
}

func (t Topics) base() string {
	return fmt.Sprintf("%s/%d", TopicPrefixActuator, t.deviceID)
}

// State is the retained current state topic.
func (t Topics) State() string {
	return t.base() + "/state"
}

// Status is the retained online/offline topic, also used for the LWT.
func (t Topics) Status() string {
	return t.base() + "/status"
}

// Command is the inbound command topic.
func (t Topics) Command() string {
	return t.base() + "/command"
}

// Reply carries the dispatcher's answer to each command.
func (t Topics) Reply() string {
	return t.base() + "/reply"
}

// AllActuatorStates matches the state topic of every actuator.
func AllActuatorStates() string {
	return TopicPrefixActuator + "/+/state"
}
