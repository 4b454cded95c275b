package migrate

import (
	"context"
	"slices"

	"github.com/charmbracelet/log"
	"github.com/chirino/movie-service/internal/cmd/backend"
	"github.com/chirino/movie-service/internal/config"
	registrymigrate "github.com/chirino/movie-service/internal/registry/migrate"
	"github.com/urfave/cli/v3"
)

// Command returns the migrate sub-command.
func Command() *cli.Command {
	cfg := config.DefaultConfig()
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply the session store and vector store schemas",
		Flags: slices.Concat(backend.LogFlags(&cfg), backend.StoreFlags(&cfg), backend.SemanticFlags(&cfg)),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if err := backend.Prepare(&cfg); err != nil {
				return err
			}
			// Running this command is the request to migrate.
			cfg.DatastoreMigrateAtStart = true
			cfg.VectorMigrateAtStart = true
			ctx = config.WithContext(ctx, &cfg)

			log.Info("Running migrations...", "migrators", registrymigrate.Names())
			if err := registrymigrate.RunAll(ctx); err != nil {
				return err
			}
			log.Info("All migrations completed successfully")
			return nil
		},
	}
}
