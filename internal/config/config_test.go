package config

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_SessionCacheTTLs(t *testing.T) {
	cfg := DefaultConfig()
	require.Equal(t, time.Hour, cfg.CacheUserTTL)
	require.Equal(t, 15*time.Minute, cfg.CacheChatPairTTL)
	require.Equal(t, 128, cfg.QueryCacheSize)
	require.Equal(t, 5, cfg.SearchDefaultTopK)
	require.Equal(t, time.Second, cfg.VersionCheckInterval)
}

func TestFromContext(t *testing.T) {
	require.Nil(t, FromContext(context.Background()))

	cfg := DefaultConfig()
	ctx := WithContext(context.Background(), &cfg)
	require.Same(t, &cfg, FromContext(ctx))
}

func TestEmbeddingDimension(t *testing.T) {
	cfg := DefaultConfig()
	require.Equal(t, 384, cfg.EmbeddingDimension())

	cfg.EmbedType = "openai"
	require.Equal(t, 1536, cfg.EmbeddingDimension())
	cfg.OpenAIDimensions = 256
	require.Equal(t, 256, cfg.EmbeddingDimension())

	cfg.EmbedType = "ollama"
	require.Equal(t, 768, cfg.EmbeddingDimension())

	cfg.EmbedType = "none"
	require.Equal(t, 0, cfg.EmbeddingDimension())
}
