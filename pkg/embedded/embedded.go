// Package embedded provides embedded static assets for the application.
package embedded

import (
	"embed"
)

// Schemas contains the SQL schema of every database, one
// schemas/<name>_schema.sql file per database name.
//
//go:embed schemas/*.sql
var Schemas embed.FS
