// Package migrations embeds the goose migrations for the local replica.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
