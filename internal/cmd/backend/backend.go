// Package backend opens the plugins selected by the configuration. It links
// every plugin into the binary so their init() registrations run.
package backend

import (
	"context"
	"fmt"
	"io"

	"github.com/charmbracelet/log"
	"github.com/chirino/movie-service/internal/config"
	"github.com/chirino/movie-service/internal/plugin/cache/breaker"
	storemetrics "github.com/chirino/movie-service/internal/plugin/store/metrics"
	registrycache "github.com/chirino/movie-service/internal/registry/cache"
	registrycatalog "github.com/chirino/movie-service/internal/registry/catalog"
	registryembed "github.com/chirino/movie-service/internal/registry/embed"
	registrystore "github.com/chirino/movie-service/internal/registry/store"
	registryvector "github.com/chirino/movie-service/internal/registry/vector"

	// Import all plugins to trigger init() registration
	_ "github.com/chirino/movie-service/internal/plugin/cache/infinispan"
	_ "github.com/chirino/movie-service/internal/plugin/cache/memory"
	_ "github.com/chirino/movie-service/internal/plugin/cache/noop"
	_ "github.com/chirino/movie-service/internal/plugin/cache/redis"
	_ "github.com/chirino/movie-service/internal/plugin/catalog/sqlite"
	_ "github.com/chirino/movie-service/internal/plugin/embed/disabled"
	_ "github.com/chirino/movie-service/internal/plugin/embed/local"
	_ "github.com/chirino/movie-service/internal/plugin/embed/ollama"
	_ "github.com/chirino/movie-service/internal/plugin/embed/openai"
	_ "github.com/chirino/movie-service/internal/plugin/store/mongo"
	_ "github.com/chirino/movie-service/internal/plugin/store/postgres"
	_ "github.com/chirino/movie-service/internal/plugin/store/sqlite"
	_ "github.com/chirino/movie-service/internal/plugin/vector/chromem"
	_ "github.com/chirino/movie-service/internal/plugin/vector/pgvector"
	_ "github.com/chirino/movie-service/internal/plugin/vector/qdrant"
	_ "github.com/chirino/movie-service/internal/plugin/vector/sqlitevec"
)

// Prepare applies the legacy environment to cfg and sets the log level.
func Prepare(cfg *config.Config) error {
	if err := cfg.ApplyLegacyEnv(); err != nil {
		return err
	}
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}
	log.SetLevel(level)
	return nil
}

// Disabled reports whether a plugin kind selects nothing.
func Disabled(kind string) bool {
	return kind == "" || kind == "none"
}

// Store opens the durable session and conversation store, instrumented with
// latency metrics.
func Store(ctx context.Context, cfg *config.Config) (registrystore.Store, error) {
	loader, err := registrystore.Select(cfg.DatastoreType)
	if err != nil {
		return nil, err
	}
	store, err := loader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	return storemetrics.Wrap(store), nil
}

// FastCache opens the fast session cache. A cache that cannot be opened is
// logged and replaced by nil so the session layer reads through to the store.
func FastCache(ctx context.Context, cfg *config.Config) registrycache.FastCache {
	loader, err := registrycache.Select(cfg.CacheType)
	if err != nil {
		log.Warn("Cache not available", "cache", cfg.CacheType, "err", err)
		return nil
	}
	cache, err := loader(ctx)
	if err != nil {
		log.Warn("Failed to initialize cache", "cache", cfg.CacheType, "err", err)
		return nil
	}
	if cfg.CacheBreakerFailures > 0 && cache.Available() {
		return breaker.Wrap(cache, breaker.Settings{
			Name:                cfg.CacheType,
			ConsecutiveFailures: cfg.CacheBreakerFailures,
			OpenTimeout:         cfg.CacheBreakerTimeout,
		})
	}
	return cache
}

// Catalog opens the movie catalog.
func Catalog(ctx context.Context, cfg *config.Config) (registrycatalog.CatalogStore, error) {
	loader, err := registrycatalog.Select(cfg.CatalogType)
	if err != nil {
		return nil, err
	}
	catalog, err := loader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize catalog: %w", err)
	}
	return catalog, nil
}

// Semantic opens the embedder and vector store. Both are nil when either kind
// is disabled.
func Semantic(ctx context.Context, cfg *config.Config) (registryembed.Embedder, registryvector.VectorStore, error) {
	if Disabled(cfg.EmbedType) || Disabled(cfg.VectorType) {
		log.Info("Semantic search disabled", "embedding", cfg.EmbedType, "vector", cfg.VectorType)
		return nil, nil, nil
	}
	embedLoader, err := registryembed.Select(cfg.EmbedType)
	if err != nil {
		return nil, nil, err
	}
	embedder, err := embedLoader(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	vectorLoader, err := registryvector.Select(cfg.VectorType)
	if err != nil {
		return nil, nil, err
	}
	vectors, err := vectorLoader(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize vector store: %w", err)
	}
	return embedder, vectors, nil
}

// Close closes v when it holds resources.
func Close(name string, v any) {
	if c, ok := v.(io.Closer); ok && c != nil {
		if err := c.Close(); err != nil {
			log.Warn("Close failed", "component", name, "err", err)
		}
	}
}
