// Package migrations embeds the SQL schema so the migrate binary can
// run without external files.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
