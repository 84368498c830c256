// Package migrations embeds the SQL migrations of the Postgres region backing.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
