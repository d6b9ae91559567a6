package migrations

import "embed"

// FS holds the SQL migrations applied at API startup.
//
//go:embed *.up.sql
var FS embed.FS
