// Package migrations embeds the SQL files applied to every shop schema.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
