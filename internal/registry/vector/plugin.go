package vector

import (
	"context"
	"fmt"
)

// VectorSearchResult represents a single vector search result.
type VectorSearchResult struct {
	MovieID int64   `json:"movieId"`
	Score   float64 `json:"score"`
}

// UpsertRequest holds the data for a single vector upsert operation.
type UpsertRequest struct {
	MovieID   int64
	Embedding []float32
	Content   string
	ModelName string
}

// VectorStore defines the interface for vector search backends.
type VectorStore interface {
	// Search returns up to limit nearest movies, best first. Scores are cosine
	// similarities.
	Search(ctx context.Context, embedding []float32, limit int) ([]VectorSearchResult, error)
	// Upsert stores or updates vector embeddings for a batch of movies.
	Upsert(ctx context.Context, entries []UpsertRequest) error
	// Version returns a marker that changes whenever the index content changes.
	Version(ctx context.Context) (string, error)
	// IsEnabled returns true if the vector store is configured and operational.
	IsEnabled() bool
	// Name returns the plugin name (e.g. "qdrant", "pgvector").
	Name() string
}

// Loader creates a VectorStore from config.
type Loader func(ctx context.Context) (VectorStore, error)

// Plugin represents a vector store plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds a vector store plugin.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered vector store plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named vector store plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown vector store %q; valid: %v", name, Names())
}
