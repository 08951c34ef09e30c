// Package mqtt publishes the actuator's state on the Gray Logic MQTT bus and
// accepts commands from it.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Retained state and status publishing
//   - The command subscription (restored after reconnect)
//   - Last Will and Testament so the bus sees the actuator go offline
//
// # Topics
//
//	graylogic/actuator/{device_id}/state    retained JSON state
//	graylogic/actuator/{device_id}/status   retained online/offline (LWT)
//	graylogic/actuator/{device_id}/command  ON | OFF | ON-PULSE | empty (read)
//	graylogic/actuator/{device_id}/reply    dispatcher reply
//
// The device id is the one assigned by the coordinator, so Connect is only
// called after registration succeeded.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, mqtt.NewTopics(resp.ID))
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.PublishRetained(client.Topics().State(), payload)
//
// MQTT is optional: a broker outage never stops the actuator.
package mqtt
