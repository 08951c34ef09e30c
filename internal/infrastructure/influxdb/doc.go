// Package influxdb records actuator telemetry in InfluxDB v2.
//
// A Telemetry value is bound to one device id at Open. Points are queued on
// the client's batching write API and flushed in the background.
//
// # Measurements
//
//	actuator_state         tags: device_id, state, source   fields: on, pulse
//	actuator_liveness      tags: device_id                  fields: counter
//	actuator_registration  tags: device_id, outcome         fields: success
//
// # Usage
//
//	tel, err := influxdb.Open(cfg.InfluxDB, resp.ID, onError)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // telemetry off
//	}
//	defer tel.Close()
//
//	tel.RecordState("ON-PULSE", "command", time.Now())
package influxdb
