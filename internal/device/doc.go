// Package device holds the actuator's state model and its persistence.
//
// # Key Types
//
//   - State: OFF, ON or ON-PULSE. No other value is ever persisted.
//   - Store: durable current state (SQLiteStore or FileStore)
//   - PulseTimer: reverts ON-PULSE to OFF after the pulse duration unless
//     a newer command superseded it
//   - SQLiteStateHistoryRepository: audit trail of every transition
//
// # Usage
//
//	store := device.NewSQLiteStore(db.DB)
//	pulse := device.NewPulseTimer(750 * time.Millisecond)
//
//	pulse.Arm(
//	    func() { store.Write(ctx, device.StatePulse) },
//	    func() { store.Write(ctx, device.StateOff) },
//	)
package device
