// Package index embeds the movie catalog into the configured vector store.
package index

import (
	"context"
	"fmt"
	"slices"

	"github.com/charmbracelet/log"
	"github.com/chirino/movie-service/internal/cmd/backend"
	"github.com/chirino/movie-service/internal/config"
	registrymigrate "github.com/chirino/movie-service/internal/registry/migrate"
	"github.com/chirino/movie-service/internal/service"
	"github.com/urfave/cli/v3"
)

// Command returns the index sub-command.
func Command() *cli.Command {
	cfg := config.DefaultConfig()
	return &cli.Command{
		Name:  "index",
		Usage: "Embed every catalog movie and upsert it into the vector store",
		Flags: slices.Concat(backend.LogFlags(&cfg), backend.StoreFlags(&cfg), backend.CatalogFlags(&cfg), backend.SemanticFlags(&cfg)),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if err := backend.Prepare(&cfg); err != nil {
				return err
			}
			return Run(config.WithContext(ctx, &cfg), &cfg)
		},
	}
}

// Run indexes the catalog once.
func Run(ctx context.Context, cfg *config.Config) error {
	if backend.Disabled(cfg.EmbedType) || backend.Disabled(cfg.VectorType) {
		return fmt.Errorf("indexing requires --embedding-kind and --vector-kind")
	}
	// Only the vector migrators apply here; the session store is not opened.
	cfg.DatastoreMigrateAtStart = false
	if err := registrymigrate.RunAll(ctx); err != nil {
		return fmt.Errorf("migrations failed: %w", err)
	}

	catalog, err := backend.Catalog(ctx, cfg)
	if err != nil {
		return err
	}
	defer backend.Close("catalog", catalog)
	embedder, vectors, err := backend.Semantic(ctx, cfg)
	if err != nil {
		return err
	}
	defer backend.Close("vector store", vectors)

	n, err := service.NewIndexer(catalog, embedder, vectors, cfg.VectorIndexerBatchSize).RunOnce(ctx)
	if err != nil {
		return err
	}
	log.Info("Catalog indexed", "movies", n, "vector", vectors.Name(), "model", embedder.ModelName())
	return nil
}
