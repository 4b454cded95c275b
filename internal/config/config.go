package config

import (
	"context"
	"strings"
	"time"
)

// ListenerConfig holds the network/TLS settings for a single listener (main or management).
type ListenerConfig struct {
	Port              int
	EnablePlainText   bool
	EnableTLS         bool
	TLSCertFile       string
	TLSKeyFile        string
	ReadHeaderTimeout time.Duration
}

type contextKey struct{}

// WithContext returns a new context carrying the given Config.
func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, contextKey{}, cfg)
}

// FromContext retrieves the Config from the context.
func FromContext(ctx context.Context) *Config {
	cfg, _ := ctx.Value(contextKey{}).(*Config)
	return cfg
}

// Config holds all configuration for the movie service.
type Config struct {
	// Logging
	LogLevel string

	// Session datastore
	DatastoreType           string // "sqlite" or "postgres"
	DBURL                   string
	DatastoreMigrateAtStart bool
	DBMaxOpenConns          int
	DBMaxIdleConns          int

	// Movie catalog
	CatalogType string // "sqlite"
	CatalogPath string

	// Query caches in front of the catalog and the vector store.
	QueryCacheSize  int
	SearchCacheSize int
	// How long a backing store's version marker is trusted before the
	// caches ask for it again. Zero checks on every lookup.
	VersionCheckInterval time.Duration

	// Fast session cache
	CacheType        string // "redis", "infinispan", "memory", or "none"
	RedisURL         string
	CacheUserTTL     time.Duration
	CacheChatPairTTL time.Duration
	// CacheMemoryMaxCost bounds the in-process cache, in bytes of stored keys and values.
	CacheMemoryMaxCost int64

	// Circuit breaker around the fast cache.
	CacheBreakerFailures uint32
	CacheBreakerTimeout  time.Duration

	// Infinispan, reached through its RESP endpoint.
	InfinispanHost           string // host:port (e.g. "localhost:11222")
	InfinispanUsername       string
	InfinispanPassword       string
	InfinispanStartupTimeout time.Duration

	// Vector store type
	VectorType string // "chromem", "sqlitevec", "qdrant", "pgvector", or "none"
	VectorPath string
	// Run vector migrations on startup.
	VectorMigrateAtStart bool
	// Number of catalog records embedded per indexer batch.
	VectorIndexerBatchSize int
	// VectorIndexerInterval re-indexes the catalog periodically while serving; zero disables it.
	VectorIndexerInterval time.Duration

	// Qdrant
	QdrantHost           string
	QdrantPort           int
	QdrantCollectionName string
	QdrantAPIKey         string
	QdrantUseTLS         bool
	QdrantStartupTimeout time.Duration

	// Embedding type
	EmbedType string // "none", "local", "openai", or "ollama"

	// OpenAI
	OpenAIAPIKey     string
	OpenAIModelName  string
	OpenAIBaseURL    string
	OpenAIDimensions int

	// Ollama embeddings share OllamaHost with the agent.
	OllamaEmbedModel      string
	OllamaEmbedDimensions int

	// Default k for semantic search when a request omits top_k.
	SearchDefaultTopK int

	// Agent
	AgentType          string // "ollama" or "none"
	OllamaHost         string
	OllamaModel        string
	AgentTemperature   float64
	AgentContextMovies int
	AgentTimeout       time.Duration

	// MCP tools endpoint
	MCPEnabled bool
	MCPPath    string

	// MetricsLabels is a comma-separated list of key=value pairs added as
	// constant labels to all Prometheus metrics. Values support ${VAR} expansion.
	// Defaults to "service=movie-service".
	MetricsLabels string

	// Server
	Listener           ListenerConfig
	ManagementListener ListenerConfig
	// ManagementListenerEnabled is true when --management-port was explicitly provided.
	// When false, management endpoints are served on the main port.
	ManagementListenerEnabled bool
	// ManagementAccessLog enables HTTP access logging for /health, /ready and /metrics.
	ManagementAccessLog bool
	CORSEnabled         bool
	CORSOrigins         string

	// Body size limit (bytes)
	MaxBodySize int64

	// Graceful shutdown drain timeout (seconds)
	DrainTimeout int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		LogLevel:                 "info",
		DatastoreType:            "sqlite",
		DBURL:                    "data/sessions.db",
		DatastoreMigrateAtStart:  true,
		DBMaxOpenConns:           25,
		DBMaxIdleConns:           5,
		CatalogType:              "sqlite",
		CatalogPath:              "data/movies.db",
		QueryCacheSize:           128,
		SearchCacheSize:          128,
		VersionCheckInterval:     time.Second,
		CacheType:                "memory",
		CacheUserTTL:             time.Hour,
		CacheChatPairTTL:         15 * time.Minute,
		CacheMemoryMaxCost:       64 << 20,
		CacheBreakerFailures:     5,
		CacheBreakerTimeout:      30 * time.Second,
		InfinispanStartupTimeout: 30 * time.Second,
		VectorType:               "chromem",
		VectorPath:               "data/vectors",
		VectorMigrateAtStart:     true,
		VectorIndexerBatchSize:   64,
		QdrantHost:               "localhost",
		QdrantPort:               6334,
		QdrantCollectionName:     "movies",
		QdrantStartupTimeout:     30 * time.Second,
		EmbedType:                "local",
		OpenAIModelName:          "text-embedding-3-small",
		OpenAIBaseURL:            "https://api.openai.com/v1",
		OllamaEmbedModel:         "nomic-embed-text",
		OllamaEmbedDimensions:    768,
		SearchDefaultTopK:        5,
		AgentType:                "ollama",
		OllamaHost:               "http://localhost:11434",
		OllamaModel:              "llama3.2",
		AgentTemperature:         0.3,
		AgentContextMovies:       5,
		AgentTimeout:             2 * time.Minute,
		MCPEnabled:               true,
		MCPPath:                  "/mcp",
		Listener: ListenerConfig{
			Port:              8000,
			EnablePlainText:   true,
			EnableTLS:         true,
			ReadHeaderTimeout: 5 * time.Second,
		},
		ManagementListener: ListenerConfig{
			EnablePlainText: true,
			EnableTLS:       true,
		},
		MaxBodySize:  1024 * 1024,
		DrainTimeout: 30,
	}
}

// EmbeddingDimension returns the vector size produced by the configured
// embedder. Vector stores size their indexes with it.
func (c *Config) EmbeddingDimension() int {
	switch strings.ToLower(strings.TrimSpace(c.EmbedType)) {
	case "local":
		return 384
	case "ollama":
		if c.OllamaEmbedDimensions > 0 {
			return c.OllamaEmbedDimensions
		}
		return 768
	case "openai":
		if c.OpenAIDimensions > 0 {
			return c.OpenAIDimensions
		}
		if strings.EqualFold(c.OpenAIModelName, "text-embedding-3-large") {
			return 3072
		}
		return 1536
	default:
		return 0
	}
}
