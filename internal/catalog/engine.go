// Package catalog answers structured movie queries: it filters the catalog,
// ranks by multi-valued matches and paginates, memoizing each page in a
// query cache.
package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chirino/movie-service/internal/model"
	"github.com/chirino/movie-service/internal/querycache"
	registrycatalog "github.com/chirino/movie-service/internal/registry/catalog"
	registrystore "github.com/chirino/movie-service/internal/registry/store"
)

// Result is one page of a catalog query.
type Result struct {
	Records []model.MovieRecord `json:"-"`
	Results any                 `json:"results"`
	Count   int                 `json:"count"`
	Filters Params              `json:"query_filters"`
	Cached  bool                `json:"cached"`
}

// Engine runs ranked catalog queries through a query cache.
type Engine struct {
	store   registrycatalog.CatalogStore
	cache   *querycache.Cache[[]model.MovieRecord]
	version *querycache.Marker
}

// Option configures an Engine.
type Option func(*engineOptions)

type engineOptions struct {
	versionInterval time.Duration
}

// WithVersionInterval sets how long a catalog version marker is trusted
// before the store is asked again. Zero checks on every query.
func WithVersionInterval(d time.Duration) Option {
	return func(o *engineOptions) { o.versionInterval = d }
}

// NewEngine returns an engine over store caching pages in cache.
func NewEngine(store registrycatalog.CatalogStore, cache *querycache.Cache[[]model.MovieRecord], opts ...Option) *Engine {
	o := engineOptions{versionInterval: querycache.DefaultVersionInterval}
	for _, opt := range opts {
		opt(&o)
	}
	return &Engine{
		store:   store,
		cache:   cache,
		version: querycache.NewMarker(o.versionInterval, store.Version),
	}
}

// Cache exposes the engine's query cache for operator actions.
func (e *Engine) Cache() *querycache.Cache[[]model.MovieRecord] { return e.cache }

// Query validates p and returns the requested page. Repeated queries with
// equivalent parameters are served from the cache until the catalog version
// changes. A cache hit does not reach the store while the version marker is
// fresh.
func (e *Engine) Query(ctx context.Context, p Params) (*Result, error) {
	p, err := p.Normalize()
	if err != nil {
		return nil, err
	}

	version, err := e.version.Get(ctx)
	if err != nil {
		return nil, &registrystore.UnavailableError{Backend: "catalog", Err: err}
	}

	records, hit, err := e.cache.GetOrLoad(ctx, version, p.cacheKey(), func(ctx context.Context) ([]model.MovieRecord, error) {
		start := time.Now()
		rows, err := e.store.Scan(ctx, registrycatalog.BaseFilter{
			Year:     p.Year,
			YearMin:  p.YearMin,
			YearMax:  p.YearMax,
			Director: p.Director,
			Title:    p.Title,
		})
		if err != nil {
			return nil, scanError(err)
		}
		page := Page(Rank(rows, p), p.Limit, p.Offset)
		log.Debug("Catalog query executed", "scanned", len(rows), "returned", len(page), "duration", time.Since(start))
		return page, nil
	})
	if err != nil {
		return nil, err
	}

	return &Result{
		Records: records,
		Results: project(records, p.ResponseFormat),
		Count:   len(records),
		Filters: p,
		Cached:  hit,
	}, nil
}

// scanError keeps a store's QueryError for filters it could not evaluate and
// reports every other failure, cancellation included, as the catalog being
// unavailable.
func scanError(err error) error {
	var qe *registrystore.QueryError
	if errors.As(err, &qe) {
		return qe
	}
	return &registrystore.UnavailableError{Backend: "catalog", Err: err}
}

func project(records []model.MovieRecord, format string) any {
	if format == FormatDetailed {
		out := make([]model.MovieDetail, len(records))
		for i, m := range records {
			out[i] = m.Detailed()
		}
		return out
	}
	out := make([]model.MovieSummary, len(records))
	for i, m := range records {
		out[i] = m.Summary()
	}
	return out
}
