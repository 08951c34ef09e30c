// Package registration announces the actuator to its coordinator.
//
// A registration is a single JSON POST to the coordinator's register
// resource. The coordinator answers with the assigned device id and the
// state the actuator should start in, or with the literal text "KO".
//
// The package does not know about CoAP: the wire is abstracted behind
// Transport, which internal/coap implements.
//
// Usage:
//
//	ep, err := registration.ParseEndpoint(cfg.Coordinator.RegisterURL)
//	client := registration.NewClient(coapClient, ep, cfg.Coordinator.RequestTimeout)
//	resp, err := client.Register(ctx, req)
//	if errors.Is(err, registration.ErrRejected) {
//	    // coordinator said KO
//	}
package registration
