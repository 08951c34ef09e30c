// Package logging provides structured logging for the Gray Logic actuator.
//
// This package wraps Go's standard log/slog package so every component
// (registration, liveness, dispatch, transports) logs through the same
// handler with the same default fields.
//
// # Features
//
//   - JSON output for production (machine-parsable)
//   - Text output for development (human-readable)
//   - Default fields (service, version, device) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("registered", "id", id)
//	monitorLog := logger.Component("liveness")
//
// Never log MQTT passwords or InfluxDB tokens.
package logging
