// Package ollama embeds text with a model served by a local Ollama instance.
package ollama

import (
	"context"
	"fmt"

	"github.com/chirino/movie-service/internal/config"
	registryembed "github.com/chirino/movie-service/internal/registry/embed"
	"github.com/tmc/langchaingo/embeddings"
	lcollama "github.com/tmc/langchaingo/llms/ollama"
)

func init() {
	registryembed.Register(registryembed.Plugin{
		Name:   "ollama",
		Loader: load,
	})
}

func load(ctx context.Context) (registryembed.Embedder, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil || cfg.OllamaHost == "" {
		return nil, fmt.Errorf("ollama embedder: MOVIE_SERVICE_OLLAMA_HOST is required")
	}
	client, err := lcollama.New(
		lcollama.WithServerURL(cfg.OllamaHost),
		lcollama.WithModel(cfg.OllamaEmbedModel),
	)
	if err != nil {
		return nil, fmt.Errorf("ollama embedder: %w", err)
	}
	embedder, err := embeddings.NewEmbedder(client)
	if err != nil {
		return nil, fmt.Errorf("ollama embedder: %w", err)
	}
	return &Embedder{embedder: embedder, model: cfg.OllamaEmbedModel, dimension: cfg.OllamaEmbedDimensions}, nil
}

type Embedder struct {
	embedder  embeddings.Embedder
	model     string
	dimension int
}

func (e *Embedder) ModelName() string { return e.model }
func (e *Embedder) Dimension() int    { return e.dimension }

func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	vectors, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	return vectors, nil
}

var _ registryembed.Embedder = (*Embedder)(nil)
