// Package migrations embeds the SQL schema for every supported store.
package migrations

import "embed"

// FS holds postgres/*.sql and sqlite/*.sql, applied by internal/migrate.
//
//go:embed postgres/*.sql sqlite/*.sql
var FS embed.FS
