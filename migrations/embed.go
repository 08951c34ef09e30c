// Package migrations embeds the actuator's SQL schema migrations.
package migrations

import "embed"

// FS holds every *.sql migration at its root. Pass it to database.DB.Migrate.
//
//go:embed *.sql
var FS embed.FS
