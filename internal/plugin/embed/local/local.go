// Package local provides a dependency-free embedder that hashes word unigrams
// and bigrams into a fixed-size bag-of-words vector. Quality is far below a
// learned model, but it is deterministic and lets the semantic path run
// without any external service.
package local

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	registryembed "github.com/chirino/movie-service/internal/registry/embed"
)

const (
	modelName = "hashed-bow-384"
	dimension = 384

	bigramWeight = 0.5
)

func init() {
	registryembed.Register(registryembed.Plugin{
		Name: "local",
		Loader: func(_ context.Context) (registryembed.Embedder, error) {
			return &LocalEmbedder{}, nil
		},
	})
}

type LocalEmbedder struct{}

func (e *LocalEmbedder) ModelName() string {
	return modelName
}

func (e *LocalEmbedder) Dimension() int {
	return dimension
}

func (e *LocalEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		results[i] = embedOne(text)
	}
	return results, nil
}

func embedOne(text string) []float32 {
	vector := make([]float32, dimension)
	tokens := tokenize(text)
	for i, tok := range tokens {
		vector[bucket(tok)] += 1
		if i > 0 {
			vector[bucket(tokens[i-1]+" "+tok)] += bigramWeight
		}
	}
	var norm float64
	for _, v := range vector {
		norm += float64(v * v)
	}
	if norm == 0 {
		return vector
	}
	inv := float32(1 / math.Sqrt(norm))
	for i := range vector {
		vector[i] *= inv
	}
	return vector
}

func bucket(token string) int {
	h := fnv.New64a()
	_, _ = h.Write([]byte(token))
	return int(h.Sum64() % dimension)
}

func tokenize(text string) []string {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return nil
	}
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

var _ registryembed.Embedder = (*LocalEmbedder)(nil)
