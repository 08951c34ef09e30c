package registration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Registration outcomes recorded in the attempt log.
const (
	OutcomeRegistered  = "registered"
	OutcomeRejected    = "rejected"
	OutcomeUnreachable = "unreachable"
	OutcomeMalformed   = "malformed"
	OutcomeFailed      = "failed"
)

const (
	defaultAttemptLimit = 20
	maxAttemptLimit     = 200
)

// Attempt is one registration call and its result.
type Attempt struct {
	ID          int64     `json:"id"`
	DeviceID    int64     `json:"device_id,omitempty"`
	Outcome     string    `json:"outcome"`
	Error       string    `json:"error,omitempty"`
	AttemptedAt time.Time `json:"attempted_at"`
}

// OutcomeOf classifies the error returned by Client.Register.
func OutcomeOf(err error) string {
	switch {
	case err == nil:
		return OutcomeRegistered
	case errors.Is(err, ErrRejected):
		return OutcomeRejected
	case errors.Is(err, ErrUnreachable):
		return OutcomeUnreachable
	case errors.Is(err, ErrMalformedResponse):
		return OutcomeMalformed
	default:
		return OutcomeFailed
	}
}

// NewAttempt builds a log entry from a Register result.
func NewAttempt(resp Response, err error) Attempt {
	a := Attempt{
		Outcome:     OutcomeOf(err),
		AttemptedAt: time.Now().UTC(),
	}
	if err != nil {
		a.Error = err.Error()
	} else {
		a.DeviceID = resp.ID
	}
	return a
}

// SQLiteAttemptLog stores registration attempts in the registration_log table.
type SQLiteAttemptLog struct {
	db *sql.DB
}

// NewSQLiteAttemptLog creates an attempt log on a migrated database.
func NewSQLiteAttemptLog(db *sql.DB) *SQLiteAttemptLog {
	return &SQLiteAttemptLog{db: db}
}

// Record appends an attempt.
func (l *SQLiteAttemptLog) Record(ctx context.Context, a Attempt) error {
	if a.AttemptedAt.IsZero() {
		a.AttemptedAt = time.Now().UTC()
	}

	var deviceID, errText any
	if a.DeviceID != 0 {
		deviceID = a.DeviceID
	}
	if a.Error != "" {
		errText = a.Error
	}

	_, err := l.db.ExecContext(ctx,
		"INSERT INTO registration_log (device_id, outcome, error, attempted_at) VALUES (?, ?, ?, ?)",
		deviceID,
		a.Outcome,
		errText,
		a.AttemptedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting registration attempt: %w", err)
	}
	return nil
}

// Recent returns the latest attempts, newest first.
// limit defaults to 20 and is capped at 200.
func (l *SQLiteAttemptLog) Recent(ctx context.Context, limit int) ([]Attempt, error) {
	if limit <= 0 {
		limit = defaultAttemptLimit
	}
	if limit > maxAttemptLimit {
		limit = maxAttemptLimit
	}

	rows, err := l.db.QueryContext(ctx,
		`SELECT id, device_id, outcome, error, attempted_at
		 FROM registration_log
		 ORDER BY id DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying registration attempts: %w", err)
	}
	defer rows.Close()

	attempts := make([]Attempt, 0, limit)
	for rows.Next() {
		var a Attempt
		var deviceID sql.NullInt64
		var errText sql.NullString
		var at string

		if err := rows.Scan(&a.ID, &deviceID, &a.Outcome, &errText, &at); err != nil {
			return nil, fmt.Errorf("scanning registration attempt: %w", err)
		}
		a.DeviceID = deviceID.Int64
		a.Error = errText.String
		if a.AttemptedAt, err = time.Parse(time.RFC3339Nano, at); err != nil {
			return nil, fmt.Errorf("parsing attempted_at: %w", err)
		}
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating registration attempts: %w", err)
	}
	return attempts, nil
}
