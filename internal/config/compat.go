package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// legacyString maps a variable read by the earlier Python deployment onto a
// Config field. The mapping applies only while the dedicated MOVIE_SERVICE_*
// variable is unset, so the flag always wins.
type legacyString struct {
	legacy, dedicated string
	field             func(*Config) *string
}

var legacyStrings = []legacyString{
	{"LOG_LEVEL", "MOVIE_SERVICE_LOG_LEVEL", func(c *Config) *string { return &c.LogLevel }},
	{"SQL_DB_PATH", "MOVIE_SERVICE_CATALOG_PATH", func(c *Config) *string { return &c.CatalogPath }},
	{"VECTOR_DB_PATH", "MOVIE_SERVICE_VECTOR_PATH", func(c *Config) *string { return &c.VectorPath }},
	{"OLLAMA_HOST", "MOVIE_SERVICE_OLLAMA_HOST", func(c *Config) *string { return &c.OllamaHost }},
	{"OLLAMA_MODEL", "MOVIE_SERVICE_OLLAMA_MODEL", func(c *Config) *string { return &c.OllamaModel }},
}

// ApplyLegacyEnv folds the environment understood by earlier deployments
// into c. It also reads the session cache TTLs, which have no flags.
func (c *Config) ApplyLegacyEnv() error {
	if c == nil {
		return nil
	}
	for _, m := range legacyStrings {
		if v := env(m.legacy); v != "" && env(m.dedicated) == "" {
			*m.field(c) = v
		}
	}
	c.LogLevel = strings.ToLower(c.LogLevel)
	if v := env("VERBOSE"); v != "" {
		verbose, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid VERBOSE: %w", err)
		}
		if verbose {
			c.LogLevel = "debug"
		}
	}

	// One CACHE_SIZE used to size both query caches.
	if v := env("CACHE_SIZE"); v != "" {
		size, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid CACHE_SIZE: %w", err)
		}
		if env("MOVIE_SERVICE_QUERY_CACHE_SIZE") == "" {
			c.QueryCacheSize = size
		}
		if env("MOVIE_SERVICE_SEARCH_CACHE_SIZE") == "" {
			c.SearchCacheSize = size
		}
	}

	for key, dest := range map[string]*time.Duration{
		"MOVIE_SERVICE_CACHE_USER_TTL":      &c.CacheUserTTL,
		"MOVIE_SERVICE_CACHE_CHAT_PAIR_TTL": &c.CacheChatPairTTL,
	} {
		if v := env(key); v != "" {
			ttl, err := parseTTL(v)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", key, err)
			}
			*dest = ttl
		}
	}

	if c.RedisURL == "" && env("MOVIE_SERVICE_REDIS_URL") == "" {
		redisURL, err := legacyRedisURL()
		if err != nil {
			return err
		}
		if redisURL != "" {
			c.RedisURL = redisURL
			if c.CacheType == "memory" {
				c.CacheType = "redis"
			}
		}
	}
	return nil
}

// legacyRedisURL assembles REDIS_HOST, REDIS_PORT, REDIS_DB and
// REDIS_PASSWORD into a redis:// URL, or "" without REDIS_HOST.
func legacyRedisURL() (string, error) {
	host := env("REDIS_HOST")
	if host == "" {
		return "", nil
	}
	port, db := "6379", "0"
	if v := env("REDIS_PORT"); v != "" {
		if _, err := strconv.Atoi(v); err != nil {
			return "", fmt.Errorf("invalid REDIS_PORT: %w", err)
		}
		port = v
	}
	if v := env("REDIS_DB"); v != "" {
		if _, err := strconv.Atoi(v); err != nil {
			return "", fmt.Errorf("invalid REDIS_DB: %w", err)
		}
		db = v
	}
	u := url.URL{Scheme: "redis", Host: net.JoinHostPort(host, port), Path: "/" + db}
	if pw := os.Getenv("REDIS_PASSWORD"); pw != "" {
		u.User = url.UserPassword("", pw)
	}
	return u.String(), nil
}

// parseTTL accepts a Go duration ("15m") or a whole number of seconds ("900").
func parseTTL(raw string) (time.Duration, error) {
	if secs, err := strconv.Atoi(raw); err == nil {
		if secs <= 0 {
			return 0, fmt.Errorf("ttl must be positive")
		}
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("ttl must be positive")
	}
	return d, nil
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

// QdrantAddress returns the host:port to dial for Qdrant gRPC. QdrantHost
// may carry its own port or be a URL, in which case QdrantPort is ignored.
func (c *Config) QdrantAddress() string {
	host, port := "localhost", 6334
	if c != nil {
		if c.QdrantPort > 0 {
			port = c.QdrantPort
		}
		raw := strings.TrimSpace(c.QdrantHost)
		if u, err := url.Parse(raw); err == nil && strings.Contains(raw, "://") && u.Host != "" {
			raw = u.Host
		}
		if h, p, err := net.SplitHostPort(raw); err == nil {
			if n, err := strconv.Atoi(p); err == nil {
				raw, port = h, n
			}
		}
		if raw != "" {
			host = raw
		}
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}
