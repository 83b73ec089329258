// Package migrations embeds SQL migration files into the binary.
//
// Importing this package (usually blank) registers the files with the
// database package so Migrate works without SQL files on disk.
package migrations

import (
	"embed"

	"github.com/nerrad567/list-to-entities/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
