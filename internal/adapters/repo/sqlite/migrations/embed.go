// Package migrations holds the embedded SQLite schema of the pool store.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
