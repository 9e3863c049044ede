// Package migrations embeds the schema scripts applied at server start.
package migrations

import "embed"

// FS holds every NNN_description.sql script in this directory.
//
//go:embed *.sql
var FS embed.FS
