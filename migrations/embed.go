// Package migrations embeds the SQL schema into the binary so a fresh
// deployment needs nothing beside the executable and its config file.
package migrations

import (
	"embed"

	"github.com/nerrad567/signalchain-core/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
