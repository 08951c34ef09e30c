package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"
)

// SQLiteStore keeps the current state in the single-row device_state table.
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteStore creates a store on a migrated database.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Read returns the persisted state.
func (s *SQLiteStore) Read(ctx context.Context) (State, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, "SELECT state FROM device_state WHERE id = 1").Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrStateUnset
	}
	if err != nil {
		return "", fmt.Errorf("querying device state: %w", err)
	}
	return ParseState(raw)
}

// Write upserts the state row in a single statement.
func (s *SQLiteStore) Write(ctx context.Context, st State) error {
	if _, err := ParseState(string(st)); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO device_state (id, state, updated_at) VALUES (1, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET state = excluded.state, updated_at = excluded.updated_at`,
		string(st),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("writing device state: %w", err)
	}
	return nil
}
