// Package migrations embeds the SQL schema of the postgres store.
package migrations

import "embed"

// Files holds every .sql file of this directory; they run in name order (001, 002, ...).
//
//go:embed *.sql
var Files embed.FS
