package migrations

import "embed"

// FS contains embedded SQLite migrations for matrix storage.
//
//go:embed *.sql
var FS embed.FS
