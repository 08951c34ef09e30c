// Package liveness keeps the actuator's registration with the coordinator
// alive.
//
// A Counter tracks ticks elapsed since the coordinator last talked to the
// actuator. Every inbound command resets it (Monitor.Touch). The Monitor
// ticks once per interval; when the counter exceeds the timeout it
// re-registers with the same request used at boot. A failed attempt is
// logged and followed by a backoff, never a crash.
//
//	counter := liveness.NewCounter()
//	mon := liveness.NewMonitor(counter, client, req, liveness.Config{
//	    TickInterval: time.Second,
//	    TimeoutTicks: 60,
//	    RetryBackoff: 59 * time.Second,
//	})
//	go mon.Run(ctx)
package liveness
