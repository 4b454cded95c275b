package openai

import (
	"context"
	"fmt"
	"strings"

	"github.com/chirino/movie-service/internal/config"
	registryembed "github.com/chirino/movie-service/internal/registry/embed"
	"github.com/tmc/langchaingo/embeddings"
	lcopenai "github.com/tmc/langchaingo/llms/openai"
)

const batchSize = 256

func init() {
	registryembed.Register(registryembed.Plugin{
		Name:   "openai",
		Loader: load,
	})
}

func load(ctx context.Context) (registryembed.Embedder, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil || cfg.OpenAIAPIKey == "" {
		return nil, fmt.Errorf("openai embedder: MOVIE_SERVICE_OPENAI_API_KEY is required")
	}
	dim := cfg.OpenAIDimensions
	if dim <= 0 {
		dim = defaultDimension(cfg.OpenAIModelName)
	}
	client, err := lcopenai.New(
		lcopenai.WithToken(cfg.OpenAIAPIKey),
		lcopenai.WithBaseURL(strings.TrimRight(cfg.OpenAIBaseURL, "/")),
		lcopenai.WithEmbeddingModel(cfg.OpenAIModelName),
	)
	if err != nil {
		return nil, fmt.Errorf("openai embedder: %w", err)
	}
	embedder, err := embeddings.NewEmbedder(client,
		embeddings.WithBatchSize(batchSize),
		embeddings.WithStripNewLines(true),
	)
	if err != nil {
		return nil, fmt.Errorf("openai embedder: %w", err)
	}
	return &OpenAIEmbedder{embedder: embedder, model: cfg.OpenAIModelName, dimension: dim}, nil
}

func defaultDimension(model string) int {
	switch strings.ToLower(model) {
	case "text-embedding-3-large":
		return 3072
	default:
		return 1536
	}
}

// OpenAIEmbedder calls an OpenAI-compatible embeddings endpoint.
type OpenAIEmbedder struct {
	embedder  embeddings.Embedder
	model     string
	dimension int
}

func (e *OpenAIEmbedder) ModelName() string {
	return e.model
}

func (e *OpenAIEmbedder) Dimension() int {
	return e.dimension
}

func (e *OpenAIEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	vectors, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("openai embed request failed: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("openai embed: expected %d embeddings, got %d", len(texts), len(vectors))
	}
	return vectors, nil
}

var _ registryembed.Embedder = (*OpenAIEmbedder)(nil)
