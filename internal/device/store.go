package device

import "context"

// Store persists the current device state.
//
// Implementations must be safe for concurrent use. A Read that races a Write
// observes either the old or the new value, never a partial one.
type Store interface {
	// Read returns the persisted state, or ErrStateUnset if nothing was written.
	Read(ctx context.Context) (State, error)

	// Write replaces the persisted state. Last writer wins.
	Write(ctx context.Context, s State) error
}
