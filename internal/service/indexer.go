package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chirino/movie-service/internal/model"
	registrycatalog "github.com/chirino/movie-service/internal/registry/catalog"
	registryembed "github.com/chirino/movie-service/internal/registry/embed"
	registryvector "github.com/chirino/movie-service/internal/registry/vector"
)

// Indexer embeds catalog movies and upserts them into the vector store.
type Indexer struct {
	catalog  registrycatalog.CatalogStore
	embedder registryembed.Embedder
	vector   registryvector.VectorStore
	batch    int

	lastVersion string
}

// NewIndexer creates an indexer that embeds batchSize movies per request.
func NewIndexer(catalog registrycatalog.CatalogStore, embedder registryembed.Embedder, vector registryvector.VectorStore, batchSize int) *Indexer {
	if batchSize <= 0 {
		batchSize = 64
	}
	return &Indexer{catalog: catalog, embedder: embedder, vector: vector, batch: batchSize}
}

// Document builds the text embedded for a movie.
func Document(m model.MovieRecord) string {
	keywords := "N/A"
	if len(m.Keywords) > 0 {
		keywords = strings.Join(m.Keywords, ", ")
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Title: %s", m.Title)
	if len(m.Genres) > 0 {
		fmt.Fprintf(&b, "\n\nGenres: %s", strings.Join(m.Genres, ", "))
	}
	fmt.Fprintf(&b, "\n\nPlot: %s\n\nKey themes and elements: %s", m.Overview, keywords)
	return b.String()
}

// RunOnce indexes the whole catalog and returns the number of movies upserted.
func (ix *Indexer) RunOnce(ctx context.Context) (int, error) {
	if ix.embedder == nil || ix.vector == nil || !ix.vector.IsEnabled() {
		return 0, fmt.Errorf("indexing requires an embedder and a vector store")
	}
	version, err := ix.catalog.Version(ctx)
	if err != nil {
		return 0, fmt.Errorf("catalog version: %w", err)
	}
	movies, err := ix.catalog.Scan(ctx, registrycatalog.BaseFilter{})
	if err != nil {
		return 0, fmt.Errorf("read catalog: %w", err)
	}

	start := time.Now()
	indexed := 0
	for lo := 0; lo < len(movies); lo += ix.batch {
		if err := ctx.Err(); err != nil {
			return indexed, err
		}
		chunk := movies[lo:min(lo+ix.batch, len(movies))]
		texts := make([]string, len(chunk))
		for i, m := range chunk {
			texts[i] = Document(m)
		}
		embeddings, err := ix.embedder.EmbedTexts(ctx, texts)
		if err != nil {
			return indexed, fmt.Errorf("embed batch at %d: %w", lo, err)
		}
		if len(embeddings) != len(chunk) {
			return indexed, fmt.Errorf("embedder returned %d vectors for %d movies", len(embeddings), len(chunk))
		}
		upserts := make([]registryvector.UpsertRequest, len(chunk))
		for i, m := range chunk {
			upserts[i] = registryvector.UpsertRequest{
				MovieID:   m.ID,
				Embedding: embeddings[i],
				Content:   texts[i],
				ModelName: ix.embedder.ModelName(),
			}
		}
		if err := ix.vector.Upsert(ctx, upserts); err != nil {
			return indexed, fmt.Errorf("upsert batch at %d: %w", lo, err)
		}
		indexed += len(chunk)
		log.Debug("Indexer: batch upserted", "done", indexed, "total", len(movies))
	}
	ix.lastVersion = version
	log.Info("Indexer: catalog indexed", "movies", indexed, "vector", ix.vector.Name(), "model", ix.embedder.ModelName(), "duration", time.Since(start))
	return indexed, nil
}

// Start re-indexes every interval while the catalog version differs from the
// last indexed one. Returns when ctx is cancelled.
func (ix *Indexer) Start(ctx context.Context, interval time.Duration) {
	if ix.embedder == nil || ix.vector == nil || !ix.vector.IsEnabled() {
		log.Info("Background indexer disabled (no embedder or vector store)")
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			version, err := ix.catalog.Version(ctx)
			if err != nil {
				log.Error("Indexer: catalog version failed", "err", err)
				continue
			}
			if version == ix.lastVersion {
				continue
			}
			if _, err := ix.RunOnce(ctx); err != nil {
				log.Error("Indexer: run failed", "err", err)
			}
		}
	}
}
