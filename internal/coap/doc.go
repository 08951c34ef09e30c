// Package coap binds the actuator to the network over CoAP (RFC 7252).
//
// Server exposes the command endpoint: every GET and POST, on any path,
// is turned into a dispatch.Request and the dispatcher's reply is sent back
// as text/plain with code 2.05 Content.
//
// Client is the registration transport: one confirmable POST per call,
// dialled fresh each time since registrations are rare.
//
// Framing, retransmission and deduplication are handled by
// github.com/plgd-dev/go-coap/v3.
package coap
