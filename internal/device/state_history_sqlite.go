package device

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200

	// historyTimeFormat is fixed width so created_at sorts lexically.
	historyTimeFormat = "2006-01-02T15:04:05.000000Z"
)

// SQLiteStateHistoryRepository implements StateHistoryRepository using the
// state_history table.
type SQLiteStateHistoryRepository struct {
	db *sql.DB
}

// NewSQLiteStateHistoryRepository creates a new SQLite state history repository.
func NewSQLiteStateHistoryRepository(db *sql.DB) *SQLiteStateHistoryRepository {
	return &SQLiteStateHistoryRepository{db: db}
}

// RecordStateChange inserts a history row. An empty source is recorded as
// "command"; a zero timestamp as now.
func (r *SQLiteStateHistoryRepository) RecordStateChange(ctx context.Context, change StateChange) error {
	if _, err := ParseState(string(change.State)); err != nil {
		return err
	}
	if change.Source == "" {
		change.Source = SourceCommand
	}
	if change.At.IsZero() {
		change.At = time.Now()
	}

	_, err := r.db.ExecContext(ctx,
		"INSERT INTO state_history (state, source, created_at) VALUES (?, ?, ?)",
		string(change.State),
		change.Source,
		change.At.UTC().Format(historyTimeFormat),
	)
	if err != nil {
		return fmt.Errorf("inserting state history: %w", err)
	}
	return nil
}

// GetHistory returns recent entries ordered newest first.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - limit: Maximum entries to return (default 50, max 200)
//
// Returns:
//   - []StateHistoryEntry: History entries, possibly empty
//   - error: nil on success, otherwise the underlying query error
func (r *SQLiteStateHistoryRepository) GetHistory(ctx context.Context, limit int) ([]StateHistoryEntry, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, state, source, created_at
		 FROM state_history
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying state history: %w", err)
	}
	defer rows.Close()

	entries := make([]StateHistoryEntry, 0, limit)
	for rows.Next() {
		var entry StateHistoryEntry
		var state, createdAt string

		if err := rows.Scan(&entry.ID, &state, &entry.Source, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning state history: %w", err)
		}
		if entry.State, err = ParseState(state); err != nil {
			return nil, err
		}
		if entry.CreatedAt, err = parseHistoryTimestamp(createdAt); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating state history: %w", err)
	}
	return entries, nil
}

// PruneHistory deletes entries older than olderThan and returns how many
// rows were removed.
func (r *SQLiteStateHistoryRepository) PruneHistory(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("olderThan must be positive")
	}

	cutoff := time.Now().UTC().Add(-olderThan).Format(historyTimeFormat)
	result, err := r.db.ExecContext(ctx, "DELETE FROM state_history WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting state history: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}

// parseHistoryTimestamp parses a created_at value.
func parseHistoryTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("created_at is empty")
	}

	timestamp, err := time.Parse(historyTimeFormat, value)
	if err == nil {
		return timestamp, nil
	}
	if fallback, fallbackErr := time.Parse(time.RFC3339Nano, value); fallbackErr == nil {
		return fallback, nil
	}
	return time.Time{}, fmt.Errorf("parsing created_at: %w", err)
}
