package backend

import (
	"strings"

	"github.com/chirino/movie-service/internal/config"
	registrycache "github.com/chirino/movie-service/internal/registry/cache"
	registrycatalog "github.com/chirino/movie-service/internal/registry/catalog"
	registryembed "github.com/chirino/movie-service/internal/registry/embed"
	registrystore "github.com/chirino/movie-service/internal/registry/store"
	registryvector "github.com/chirino/movie-service/internal/registry/vector"
	"github.com/urfave/cli/v3"
)

// StoreFlags configure the durable session store.
func StoreFlags(cfg *config.Config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "db-kind",
			Category:    "Database:",
			Sources:     cli.EnvVars("MOVIE_SERVICE_DB_KIND"),
			Destination: &cfg.DatastoreType,
			Value:       cfg.DatastoreType,
			Usage:       "Session store (" + strings.Join(registrystore.Names(), "|") + ")",
		},
		&cli.StringFlag{
			Name:        "db-url",
			Category:    "Database:",
			Sources:     cli.EnvVars("MOVIE_SERVICE_DB_URL"),
			Destination: &cfg.DBURL,
			Value:       cfg.DBURL,
			Usage:       "Database connection URL, or file path for sqlite",
		},
		&cli.BoolFlag{
			Name:        "db-migrate-at-start",
			Category:    "Database:",
			Sources:     cli.EnvVars("MOVIE_SERVICE_DB_MIGRATE_AT_START"),
			Destination: &cfg.DatastoreMigrateAtStart,
			Value:       cfg.DatastoreMigrateAtStart,
			Usage:       "Apply the session store schema on startup",
		},
		&cli.IntFlag{
			Name:        "db-max-open-conns",
			Category:    "Database:",
			Sources:     cli.EnvVars("MOVIE_SERVICE_DB_MAX_OPEN_CONNS"),
			Destination: &cfg.DBMaxOpenConns,
			Value:       cfg.DBMaxOpenConns,
			Usage:       "Maximum number of open database connections",
		},
		&cli.IntFlag{
			Name:        "db-max-idle-conns",
			Category:    "Database:",
			Sources:     cli.EnvVars("MOVIE_SERVICE_DB_MAX_IDLE_CONNS"),
			Destination: &cfg.DBMaxIdleConns,
			Value:       cfg.DBMaxIdleConns,
			Usage:       "Maximum number of idle database connections",
		},
	}
}

// CacheFlags configure the fast session cache.
func CacheFlags(cfg *config.Config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "cache-kind",
			Category:    "Cache:",
			Sources:     cli.EnvVars("MOVIE_SERVICE_CACHE_KIND"),
			Destination: &cfg.CacheType,
			Value:       cfg.CacheType,
			Usage:       "Session cache backend (" + strings.Join(registrycache.Names(), "|") + ")",
		},
		&cli.StringFlag{
			Name:        "redis-url",
			Category:    "Cache:",
			Sources:     cli.EnvVars("MOVIE_SERVICE_REDIS_URL"),
			Destination: &cfg.RedisURL,
			Usage:       "Redis connection URL",
		},
		&cli.Int64Flag{
			Name:        "cache-memory-max-cost",
			Category:    "Cache:",
			Sources:     cli.EnvVars("MOVIE_SERVICE_CACHE_MEMORY_MAX_COST"),
			Destination: &cfg.CacheMemoryMaxCost,
			Value:       cfg.CacheMemoryMaxCost,
			Usage:       "Byte budget of the in-process session cache",
		},
		&cli.Uint32Flag{
			Name:        "cache-breaker-failures",
			Category:    "Cache:",
			Sources:     cli.EnvVars("MOVIE_SERVICE_CACHE_BREAKER_FAILURES"),
			Destination: &cfg.CacheBreakerFailures,
			Value:       cfg.CacheBreakerFailures,
			Usage:       "Consecutive cache failures that open the circuit breaker (0 disables the breaker)",
		},
		&cli.DurationFlag{
			Name:        "cache-breaker-timeout",
			Category:    "Cache:",
			Sources:     cli.EnvVars("MOVIE_SERVICE_CACHE_BREAKER_TIMEOUT"),
			Destination: &cfg.CacheBreakerTimeout,
			Value:       cfg.CacheBreakerTimeout,
			Usage:       "How long an open breaker skips the cache before probing it again",
		},
		&cli.StringFlag{
			Name:        "infinispan-host",
			Category:    "Cache:",
			Sources:     cli.EnvVars("MOVIE_SERVICE_INFINISPAN_HOST"),
			Destination: &cfg.InfinispanHost,
			Usage:       "Infinispan RESP host:port (e.g. localhost:11222)",
		},
		&cli.StringFlag{
			Name:        "infinispan-username",
			Category:    "Cache:",
			Sources:     cli.EnvVars("MOVIE_SERVICE_INFINISPAN_USERNAME"),
			Destination: &cfg.InfinispanUsername,
			Usage:       "Infinispan username",
		},
		&cli.StringFlag{
			Name:        "infinispan-password",
			Category:    "Cache:",
			Sources:     cli.EnvVars("MOVIE_SERVICE_INFINISPAN_PASSWORD"),
			Destination: &cfg.InfinispanPassword,
			Usage:       "Infinispan password",
		},
	}
}

// CatalogFlags configure the movie catalog and its query caches.
func CatalogFlags(cfg *config.Config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "catalog-kind",
			Category:    "Catalog:",
			Sources:     cli.EnvVars("MOVIE_SERVICE_CATALOG_KIND"),
			Destination: &cfg.CatalogType,
			Value:       cfg.CatalogType,
			Usage:       "Catalog store (" + strings.Join(registrycatalog.Names(), "|") + ")",
		},
		&cli.StringFlag{
			Name:        "catalog-path",
			Category:    "Catalog:",
			Sources:     cli.EnvVars("MOVIE_SERVICE_CATALOG_PATH"),
			Destination: &cfg.CatalogPath,
			Value:       cfg.CatalogPath,
			Usage:       "Path of the movie catalog database",
		},
		&cli.IntFlag{
			Name:        "query-cache-size",
			Category:    "Catalog:",
			Sources:     cli.EnvVars("MOVIE_SERVICE_QUERY_CACHE_SIZE"),
			Destination: &cfg.QueryCacheSize,
			Value:       cfg.QueryCacheSize,
			Usage:       "Entries kept by the structured query cache",
		},
		&cli.IntFlag{
			Name:        "search-cache-size",
			Category:    "Catalog:",
			Sources:     cli.EnvVars("MOVIE_SERVICE_SEARCH_CACHE_SIZE"),
			Destination: &cfg.SearchCacheSize,
			Value:       cfg.SearchCacheSize,
			Usage:       "Entries kept by the semantic search cache",
		},
		&cli.DurationFlag{
			Name:        "version-check-interval",
			Category:    "Catalog:",
			Sources:     cli.EnvVars("MOVIE_SERVICE_VERSION_CHECK_INTERVAL"),
			Destination: &cfg.VersionCheckInterval,
			Value:       cfg.VersionCheckInterval,
			Usage:       "How long cached catalog and index version markers are trusted (0 checks every lookup)",
		},
		&cli.IntFlag{
			Name:        "search-default-top-k",
			Category:    "Catalog:",
			Sources:     cli.EnvVars("MOVIE_SERVICE_SEARCH_DEFAULT_TOP_K"),
			Destination: &cfg.SearchDefaultTopK,
			Value:       cfg.SearchDefaultTopK,
			Usage:       "Semantic results returned when a request omits top_k",
		},
	}
}

// SemanticFlags configure the embedder and the vector store.
func SemanticFlags(cfg *config.Config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "vector-kind",
			Category:    "Vector Store:",
			Sources:     cli.EnvVars("MOVIE_SERVICE_VECTOR_KIND"),
			Destination: &cfg.VectorType,
			Value:       cfg.VectorType,
			Usage:       "Vector store (none|" + strings.Join(registryvector.Names(), "|") + ")",
		},
		&cli.StringFlag{
			Name:        "vector-path",
			Category:    "Vector Store:",
			Sources:     cli.EnvVars("MOVIE_SERVICE_VECTOR_PATH"),
			Destination: &cfg.VectorPath,
			Value:       cfg.VectorPath,
			Usage:       "Directory of the embedded vector stores (chromem, sqlitevec)",
		},
		&cli.BoolFlag{
			Name:        "vector-migrate-at-start",
			Category:    "Vector Store:",
			Sources:     cli.EnvVars("MOVIE_SERVICE_VECTOR_MIGRATE_AT_START"),
			Destination: &cfg.VectorMigrateAtStart,
			Value:       cfg.VectorMigrateAtStart,
			Usage:       "Create the vector collection or table on startup",
		},
		&cli.IntFlag{
			Name:        "vector-indexer-batch-size",
			Category:    "Vector Store:",
			Sources:     cli.EnvVars("MOVIE_SERVICE_VECTOR_INDEXER_BATCH_SIZE"),
			Destination: &cfg.VectorIndexerBatchSize,
			Value:       cfg.VectorIndexerBatchSize,
			Usage:       "Movies embedded per indexer request",
		},
		&cli.DurationFlag{
			Name:        "vector-indexer-interval",
			Category:    "Vector Store:",
			Sources:     cli.EnvVars("MOVIE_SERVICE_VECTOR_INDEXER_INTERVAL"),
			Destination: &cfg.VectorIndexerInterval,
			Value:       cfg.VectorIndexerInterval,
			Usage:       "Re-index the catalog on this interval while serving (0 disables)",
		},
		&cli.StringFlag{
			Name:        "vector-qdrant-host",
			Category:    "Vector Store:",
			Sources:     cli.EnvVars("MOVIE_SERVICE_VECTOR_QDRANT_HOST", "MOVIE_SERVICE_QDRANT_HOST"),
			Destination: &cfg.QdrantHost,
			Value:       cfg.QdrantAddress(),
			Usage:       "Qdrant host or host:port",
		},
		&cli.StringFlag{
			Name:        "vector-qdrant-collection",
			Category:    "Vector Store:",
			Sources:     cli.EnvVars("MOVIE_SERVICE_VECTOR_QDRANT_COLLECTION"),
			Destination: &cfg.QdrantCollectionName,
			Value:       cfg.QdrantCollectionName,
			Usage:       "Qdrant collection holding movie embeddings",
		},
		&cli.StringFlag{
			Name:        "vector-qdrant-api-key",
			Category:    "Vector Store:",
			Sources:     cli.EnvVars("MOVIE_SERVICE_VECTOR_QDRANT_API_KEY"),
			Destination: &cfg.QdrantAPIKey,
			Usage:       "Qdrant API key",
		},
		&cli.BoolFlag{
			Name:        "vector-qdrant-use-tls",
			Category:    "Vector Store:",
			Sources:     cli.EnvVars("MOVIE_SERVICE_VECTOR_QDRANT_USE_TLS"),
			Destination: &cfg.QdrantUseTLS,
			Usage:       "Connect to Qdrant over TLS",
		},

		&cli.StringFlag{
			Name:        "embedding-kind",
			Category:    "Embedding:",
			Sources:     cli.EnvVars("MOVIE_SERVICE_EMBEDDING_KIND"),
			Destination: &cfg.EmbedType,
			Value:       cfg.EmbedType,
			Usage:       "Embedding provider (" + strings.Join(registryembed.Names(), "|") + ")",
		},
		&cli.StringFlag{
			Name:        "embedding-openai-api-key",
			Category:    "Embedding:",
			Sources:     cli.EnvVars("MOVIE_SERVICE_EMBEDDING_OPENAI_API_KEY", "OPENAI_API_KEY"),
			Destination: &cfg.OpenAIAPIKey,
			Usage:       "OpenAI API key",
		},
		&cli.StringFlag{
			Name:        "embedding-openai-model",
			Category:    "Embedding:",
			Sources:     cli.EnvVars("MOVIE_SERVICE_EMBEDDING_OPENAI_MODEL"),
			Destination: &cfg.OpenAIModelName,
			Value:       cfg.OpenAIModelName,
			Usage:       "OpenAI embedding model",
		},
		&cli.StringFlag{
			Name:        "embedding-openai-base-url",
			Category:    "Embedding:",
			Sources:     cli.EnvVars("MOVIE_SERVICE_EMBEDDING_OPENAI_BASE_URL"),
			Destination: &cfg.OpenAIBaseURL,
			Value:       cfg.OpenAIBaseURL,
			Usage:       "OpenAI-compatible API base URL",
		},
		&cli.IntFlag{
			Name:        "embedding-openai-dimensions",
			Category:    "Embedding:",
			Sources:     cli.EnvVars("MOVIE_SERVICE_EMBEDDING_OPENAI_DIMENSIONS"),
			Destination: &cfg.OpenAIDimensions,
			Usage:       "Override the OpenAI embedding size",
		},
		&cli.StringFlag{
			Name:        "embedding-ollama-model",
			Category:    "Embedding:",
			Sources:     cli.EnvVars("MOVIE_SERVICE_EMBEDDING_OLLAMA_MODEL"),
			Destination: &cfg.OllamaEmbedModel,
			Value:       cfg.OllamaEmbedModel,
			Usage:       "Ollama embedding model",
		},
		&cli.IntFlag{
			Name:        "embedding-ollama-dimensions",
			Category:    "Embedding:",
			Sources:     cli.EnvVars("MOVIE_SERVICE_EMBEDDING_OLLAMA_DIMENSIONS"),
			Destination: &cfg.OllamaEmbedDimensions,
			Value:       cfg.OllamaEmbedDimensions,
			Usage:       "Vector size produced by the Ollama embedding model",
		},
		&cli.StringFlag{
			Name:        "ollama-host",
			Category:    "Embedding:",
			Sources:     cli.EnvVars("MOVIE_SERVICE_OLLAMA_HOST"),
			Destination: &cfg.OllamaHost,
			Value:       cfg.OllamaHost,
			Usage:       "Ollama server URL, shared by embeddings and the agent",
		},
	}
}

// LogFlags configure logging.
func LogFlags(cfg *config.Config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Category:    "Logging:",
			Sources:     cli.EnvVars("MOVIE_SERVICE_LOG_LEVEL"),
			Destination: &cfg.LogLevel,
			Value:       cfg.LogLevel,
			Usage:       "Log level (debug|info|warn|error); LOG_LEVEL and VERBOSE=true are honoured when unset",
		},
	}
}
