package catalog

import (
	"context"
	"fmt"

	"github.com/chirino/movie-service/internal/model"
)

// BaseFilter holds the single-valued filters a catalog store evaluates itself.
// When Year is set YearMin and YearMax are ignored. Director and Title are
// case-insensitive substring matches.
type BaseFilter struct {
	Year     *int
	YearMin  *int
	YearMax  *int
	Director string
	Title    string
}

// CatalogStore is a read-only source of movie records.
type CatalogStore interface {
	// Scan returns every record matching the filter.
	Scan(ctx context.Context, filter BaseFilter) ([]model.MovieRecord, error)
	// GetByIDs returns the records with the given ids, keyed by id.
	GetByIDs(ctx context.Context, ids []int64) (map[int64]model.MovieRecord, error)
	// Count returns the number of records in the catalog.
	Count(ctx context.Context) (int64, error)
	// Version returns a marker that changes whenever the catalog content changes.
	Version(ctx context.Context) (string, error)
	Close() error
}

// Loader creates a catalog store from config.
type Loader func(ctx context.Context) (CatalogStore, error)

// Plugin represents a catalog plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds a catalog plugin.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered catalog plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named catalog plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown catalog %q; valid: %v", name, Names())
}
