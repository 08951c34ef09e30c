// Package api implements the diagnostics HTTP API and WebSocket stream of the
// actuator.
//
// This package provides:
//   - Read-only REST endpoints for health, current state, state history and
//     registration attempts
//   - One-way WebSocket stream of state changes as they are applied
//   - Middleware stack (request ID, logging, recovery, body limit)
//
// # Architecture
//
// The API never changes device state. Commands arrive over CoAP (or the
// optional MQTT binding) and go through the dispatcher. The state stream is a
// dispatcher observer, so every applied write reaches WebSocket clients.
//
// # Graceful Degradation
//
// History and registration endpoints return 503 when their backing store is
// not configured (file state backend without a database).
package api
