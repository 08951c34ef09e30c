package device

import (
	"context"
	"time"
)

// StateHistoryEntry is one recorded state transition.
type StateHistoryEntry struct {
	ID        int64     `json:"id"`
	State     State     `json:"state"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
}

// StateHistoryRepository stores and retrieves state change history.
//
// Implementations must be thread-safe and use UTC timestamps.
type StateHistoryRepository interface {
	// RecordStateChange appends a transition.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout
	//   - change: The applied state and its source
	//
	// Returns:
	//   - error: nil on success, otherwise the underlying persistence error
	RecordStateChange(ctx context.Context, change StateChange) error

	// GetHistory returns recent transitions, newest first.
	// Implementations clamp limit to a sane range.
	GetHistory(ctx context.Context, limit int) ([]StateHistoryEntry, error)
}
