// Package migrations embeds the SQL schema so the binary can migrate both
// Postgres and SQLite without a migrations directory on disk.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
