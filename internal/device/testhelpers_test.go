package device

import (
	"context"
	"database/sql"
	"testing"

	"github.com/nerrad567/gray-logic-actuator/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-actuator/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-actuator/migrations"
)

// setupTestDB opens an in-memory database with the actuator schema applied.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := database.Open(config.DatabaseConfig{Path: database.MemoryPath})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if err := db.Migrate(context.Background(), migrations.FS); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return db.DB
}
