// Package semantic answers free-text movie searches by embedding the query,
// asking the vector store for the nearest movies and hydrating them from the
// catalog. Results are memoized per normalized query text and k.
package semantic

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chirino/movie-service/internal/model"
	"github.com/chirino/movie-service/internal/querycache"
	registrycatalog "github.com/chirino/movie-service/internal/registry/catalog"
	registryembed "github.com/chirino/movie-service/internal/registry/embed"
	registrystore "github.com/chirino/movie-service/internal/registry/store"
	registryvector "github.com/chirino/movie-service/internal/registry/vector"
)

const (
	DefaultTopK = 5
	MaxTopK     = 50
)

// ErrDisabled is wrapped in an UnavailableError when no embedder or vector
// store is configured.
var ErrDisabled = errors.New("semantic search is not configured")

// Result is the answer to one semantic search.
type Result struct {
	Query      string                `json:"query"`
	Count      int                   `json:"count"`
	Movies     []model.ScoredSummary `json:"movies"`
	SearchType string                `json:"search_type"`
	Cached     bool                  `json:"cached"`

	Hits []model.ScoredMovie `json:"-"`
}

// Searcher runs cached semantic searches.
type Searcher struct {
	embedder registryembed.Embedder
	vectors  registryvector.VectorStore
	catalog  registrycatalog.CatalogStore
	cache    *querycache.Cache[[]model.ScoredMovie]
	marker   *querycache.Marker
}

// Option configures a Searcher.
type Option func(*searcherOptions)

type searcherOptions struct {
	versionInterval time.Duration
}

// WithVersionInterval sets how long the combined index and catalog version
// marker is trusted. Zero checks both on every search.
func WithVersionInterval(d time.Duration) Option {
	return func(o *searcherOptions) { o.versionInterval = d }
}

// New returns a searcher. A nil embedder or vector store yields a searcher
// whose every search reports ErrDisabled.
func New(embedder registryembed.Embedder, vectors registryvector.VectorStore, catalog registrycatalog.CatalogStore, cache *querycache.Cache[[]model.ScoredMovie], opts ...Option) *Searcher {
	o := searcherOptions{versionInterval: querycache.DefaultVersionInterval}
	for _, opt := range opts {
		opt(&o)
	}
	s := &Searcher{embedder: embedder, vectors: vectors, catalog: catalog, cache: cache}
	s.marker = querycache.NewMarker(o.versionInterval, s.version)
	return s
}

// Enabled reports whether searches can be served.
func (s *Searcher) Enabled() bool {
	return s != nil && s.embedder != nil && s.vectors != nil && s.vectors.IsEnabled()
}

// Cache exposes the search cache for operator actions.
func (s *Searcher) Cache() *querycache.Cache[[]model.ScoredMovie] { return s.cache }

// NormalizeText lowercases, trims and collapses internal whitespace.
func NormalizeText(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// Search returns up to k movies closest to text, best first.
func (s *Searcher) Search(ctx context.Context, text string, k int) (*Result, error) {
	query := NormalizeText(text)
	if query == "" {
		return nil, &registrystore.ValidationError{Field: "query_text", Message: "must not be empty"}
	}
	if k < 1 || k > MaxTopK {
		return nil, &registrystore.ValidationError{Field: "top_k", Message: fmt.Sprintf("must be between 1 and %d", MaxTopK)}
	}
	if !s.Enabled() {
		return nil, &registrystore.UnavailableError{Backend: "semantic", Err: ErrDisabled}
	}

	marker, err := s.marker.Get(ctx)
	if err != nil {
		return nil, err
	}
	key := querycache.MakeKey(map[string]any{"query_text": query, "top_k": k})

	hits, cached, err := s.cache.GetOrLoad(ctx, marker, key, func(ctx context.Context) ([]model.ScoredMovie, error) {
		return s.load(ctx, query, k)
	})
	if err != nil {
		return nil, err
	}

	movies := make([]model.ScoredSummary, len(hits))
	for i, h := range hits {
		movies[i] = h.Summary()
	}
	return &Result{
		Query:      text,
		Count:      len(hits),
		Movies:     movies,
		SearchType: "semantic",
		Cached:     cached,
		Hits:       hits,
	}, nil
}

// version changes when either the index or the catalog it points into does.
func (s *Searcher) version(ctx context.Context) (string, error) {
	vv, err := s.vectors.Version(ctx)
	if err != nil {
		return "", &registrystore.UnavailableError{Backend: s.vectors.Name(), Err: err}
	}
	cv, err := s.catalog.Version(ctx)
	if err != nil {
		return "", &registrystore.UnavailableError{Backend: "catalog", Err: err}
	}
	return vv + "|" + cv, nil
}

func (s *Searcher) load(ctx context.Context, query string, k int) ([]model.ScoredMovie, error) {
	start := time.Now()
	vec, err := registryembed.EmbedText(ctx, s.embedder, query)
	if err != nil {
		return nil, &registrystore.UnavailableError{Backend: "embedder", Err: err}
	}
	matches, err := s.vectors.Search(ctx, vec, k)
	if err != nil {
		return nil, &registrystore.UnavailableError{Backend: s.vectors.Name(), Err: err}
	}
	ids := make([]int64, len(matches))
	for i, m := range matches {
		ids[i] = m.MovieID
	}
	records, err := s.catalog.GetByIDs(ctx, ids)
	if err != nil {
		return nil, &registrystore.UnavailableError{Backend: "catalog", Err: err}
	}

	hits := make([]model.ScoredMovie, 0, len(matches))
	for _, m := range matches {
		rec, ok := records[m.MovieID]
		if !ok {
			// Indexed but no longer in the catalog.
			continue
		}
		hits = append(hits, model.ScoredMovie{Movie: rec, Similarity: clamp01(m.Score)})
	}
	log.Debug("Semantic search executed", "k", k, "matches", len(matches), "returned", len(hits), "duration", time.Since(start))
	return hits, nil
}

func clamp01(v float64) float64 {
	return min(max(v, 0), 1)
}
