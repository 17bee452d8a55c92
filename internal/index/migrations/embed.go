// Package migrations embeds the SQLite schema for the guidelines index.
package migrations

import "embed"

// FS contains embedded SQLite migrations for the guidelines index.
//
//go:embed *.sql
var FS embed.FS
