package disabled

import (
	"context"

	"github.com/chirino/movie-service/internal/registry/embed"
)

func init() {
	embed.Register(embed.Plugin{
		Name: "none",
		Loader: func(ctx context.Context) (embed.Embedder, error) {
			return disabledEmbedder{}, nil
		},
	})
}

type disabledEmbedder struct{}

func (disabledEmbedder) EmbedTexts(context.Context, []string) ([][]float32, error) {
	return nil, embed.ErrDisabled
}

func (disabledEmbedder) ModelName() string { return "none" }
func (disabledEmbedder) Dimension() int    { return 0 }

var _ embed.Embedder = disabledEmbedder{}
