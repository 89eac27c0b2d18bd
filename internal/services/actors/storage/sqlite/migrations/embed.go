package migrations

import "embed"

// FS contains embedded SQLite migrations for actor state storage.
//
//go:embed *.sql
var FS embed.FS
