package device

import (
	"context"
	"testing"
	"time"
)

func TestSQLiteStateHistoryRepository_RecordAndGet(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteStateHistoryRepository(db)
	ctx := context.Background()

	base := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	changes := []StateChange{
		{State: StateOn, Source: SourceRegistration, At: base},
		{State: StatePulse, Source: SourceCommand, At: base.Add(time.Second)},
		{State: StateOff, Source: SourcePulse, At: base.Add(time.Second + 750*time.Millisecond)},
	}
	for _, c := range changes {
		if err := repo.RecordStateChange(ctx, c); err != nil {
			t.Fatalf("RecordStateChange() error = %v", err)
		}
	}

	entries, err := repo.GetHistory(ctx, 10)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("len(entries) = %d, want 3", len(entries))
	}
	if entries[0].State != StateOff || entries[0].Source != SourcePulse {
		t.Errorf("newest entry = %+v, want OFF from pulse", entries[0])
	}
	if !entries[0].CreatedAt.Equal(changes[2].At) {
		t.Errorf("CreatedAt = %v, want %v", entries[0].CreatedAt, changes[2].At)
	}
	if entries[2].State != StateOn {
		t.Errorf("oldest entry state = %s, want ON", entries[2].State)
	}
}

func TestSQLiteStateHistoryRepository_Defaults(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteStateHistoryRepository(db)
	ctx := context.Background()

	if err := repo.RecordStateChange(ctx, StateChange{State: StateOn}); err != nil {
		t.Fatalf("RecordStateChange() error = %v", err)
	}

	entries, err := repo.GetHistory(ctx, 0)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("len(entries) = %d, want 1", len(entries))
	}
	if entries[0].Source != SourceCommand {
		t.Errorf("Source = %q, want %q", entries[0].Source, SourceCommand)
	}
	if entries[0].CreatedAt.IsZero() {
		t.Error("CreatedAt should default to now")
	}
}

func TestSQLiteStateHistoryRepository_RejectsInvalidState(t *testing.T) {
	repo := NewSQLiteStateHistoryRepository(setupTestDB(t))
	if err := repo.RecordStateChange(context.Background(), StateChange{State: "DIM"}); err == nil {
		t.Error("RecordStateChange() expected error for invalid state")
	}
}

func TestSQLiteStateHistoryRepository_LimitClamp(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteStateHistoryRepository(db)
	ctx := context.Background()

	for i := 0; i < maxHistoryLimit+5; i++ {
		if err := repo.RecordStateChange(ctx, StateChange{State: StateOn}); err != nil {
			t.Fatalf("RecordStateChange() error = %v", err)
		}
	}

	entries, err := repo.GetHistory(ctx, 1000)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(entries) != maxHistoryLimit {
		t.Errorf("len(entries) = %d, want %d", len(entries), maxHistoryLimit)
	}
}

func TestSQLiteStateHistoryRepository_PruneHistory(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteStateHistoryRepository(db)
	ctx := context.Background()

	now := time.Now().UTC()
	if err := repo.RecordStateChange(ctx, StateChange{State: StateOn, At: now.Add(-48 * time.Hour)}); err != nil {
		t.Fatalf("RecordStateChange() error = %v", err)
	}
	if err := repo.RecordStateChange(ctx, StateChange{State: StateOff, At: now}); err != nil {
		t.Fatalf("RecordStateChange() error = %v", err)
	}

	deleted, err := repo.PruneHistory(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("PruneHistory() error = %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}

	if _, err := repo.PruneHistory(ctx, 0); err == nil {
		t.Error("PruneHistory(0) expected error")
	}
}

func TestParseHistoryTimestamp(t *testing.T) {
	tests := []struct {
		input   string
		wantErr bool
	}{
		{"2026-10-17T12:00:00.000000Z", false},
		{"2026-10-17T12:00:00Z", false},
		{"", true},
		{"yesterday", true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			_, err := parseHistoryTimestamp(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("parseHistoryTimestamp(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}
