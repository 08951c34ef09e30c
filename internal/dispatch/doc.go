// Package dispatch maps inbound commands to device state transitions.
//
// The dispatcher is transport neutral: the CoAP server and the MQTT command
// subscription both build a Request and send the returned bytes back.
//
//	GET                 -> current state, or KO if it cannot be read
//	POST ON | OFF       -> write state, cancel any pending pulse, echo
//	POST ON-PULSE       -> write ON-PULSE, revert to OFF after the pulse
//	                       duration, echo
//	anything else       -> KO
//
// Every request, valid or not, counts as coordinator contact and resets the
// liveness counter.
package dispatch
