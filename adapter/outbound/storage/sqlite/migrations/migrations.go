// Package migrations embeds the ordered schema migrations. Identifiers are
// lexicographic; goose applies each once, in its own transaction.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
