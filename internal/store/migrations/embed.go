// Package migrations embeds the SQL schema for the sqlite and postgres stores.
package migrations

import "embed"

// SQLite holds the sqlite migrations under "sqlite".
//
//go:embed sqlite/*.sql
var SQLite embed.FS

// Postgres holds the postgres migrations under "postgres".
//
//go:embed postgres/*.sql
var Postgres embed.FS
