// Package mdns advertises the actuator's CoAP command endpoint over DNS-SD,
// so a coordinator on the same link can find it without configuration.
//
// The service type is _coap._udp in the local. domain. TXT records carry the
// coordinator-assigned id and whether the actuator is pulse capable:
//
//	id=7
//	pulse=true
package mdns
