// Package database provides SQLite connectivity for the actuator.
//
// The database holds the single-row current device state and the
// append-only state change history. It manages:
//   - Connection setup with WAL mode and a busy timeout
//   - Schema migrations read from an fs.FS (normally the embedded
//     migrations package)
//   - Health checks used by the diagnostics API
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migration files are named YYYYMMDD_HHMMSS_description.up.sql and are
// applied forward only.
package database
