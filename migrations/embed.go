// Package migrations ships the schema for tenant databases.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
