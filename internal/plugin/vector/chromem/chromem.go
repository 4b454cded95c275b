// Package chromem stores movie embeddings in an embedded chromem-go database
// persisted under the configured vector path.
package chromem

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/chirino/movie-service/internal/config"
	registryvector "github.com/chirino/movie-service/internal/registry/vector"
	chromem "github.com/philippgille/chromem-go"
)

const collectionName = "movies"

func init() {
	registryvector.Register(registryvector.Plugin{
		Name:   "chromem",
		Loader: load,
	})
}

func load(ctx context.Context) (registryvector.VectorStore, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil || cfg.VectorPath == "" {
		return nil, fmt.Errorf("chromem: MOVIE_SERVICE_VECTOR_PATH is required")
	}
	return Open(cfg.VectorPath)
}

// errNoEmbedFunc guards against chromem embedding text itself; every
// document and query arrives with a precomputed embedding.
var errNoEmbedFunc = errors.New("chromem: documents must carry precomputed embeddings")

func noEmbed(context.Context, string) ([]float32, error) { return nil, errNoEmbedFunc }

// Store is a chromem-go backed VectorStore.
type Store struct {
	mu         sync.RWMutex
	db         *chromem.DB
	collection *chromem.Collection
	generation atomic.Uint64
}

// Open creates or opens the persistent database at dir. An empty dir keeps
// everything in memory.
func Open(dir string) (*Store, error) {
	var db *chromem.DB
	if dir == "" {
		db = chromem.NewDB()
	} else {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("chromem: create dir: %w", err)
		}
		var err error
		db, err = chromem.NewPersistentDB(dir, false)
		if err != nil {
			return nil, fmt.Errorf("chromem: open: %w", err)
		}
	}
	col, err := db.GetOrCreateCollection(collectionName, nil, noEmbed)
	if err != nil {
		return nil, fmt.Errorf("chromem: collection: %w", err)
	}
	return &Store{db: db, collection: col}, nil
}

func (s *Store) IsEnabled() bool { return true }
func (s *Store) Name() string    { return "chromem" }

func (s *Store) Search(ctx context.Context, embedding []float32, limit int) ([]registryvector.VectorSearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := min(limit, s.collection.Count())
	if n <= 0 {
		return []registryvector.VectorSearchResult{}, nil
	}
	hits, err := s.collection.QueryEmbedding(ctx, embedding, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem: query: %w", err)
	}
	results := make([]registryvector.VectorSearchResult, 0, len(hits))
	for _, h := range hits {
		id, err := strconv.ParseInt(h.ID, 10, 64)
		if err != nil {
			continue
		}
		results = append(results, registryvector.VectorSearchResult{MovieID: id, Score: float64(h.Similarity)})
	}
	return results, nil
}

func (s *Store) Upsert(ctx context.Context, entries []registryvector.UpsertRequest) error {
	if len(entries) == 0 {
		return nil
	}
	docs := make([]chromem.Document, len(entries))
	for i, e := range entries {
		docs[i] = chromem.Document{
			ID:        strconv.FormatInt(e.MovieID, 10),
			Content:   e.Content,
			Embedding: e.Embedding,
			Metadata:  map[string]string{"model": e.ModelName},
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("chromem: add documents: %w", err)
	}
	s.generation.Add(1)
	return nil
}

// Version combines the document count with a counter bumped on every upsert
// made through this process.
func (s *Store) Version(context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fmt.Sprintf("%d-%d", s.collection.Count(), s.generation.Load()), nil
}

var _ registryvector.VectorStore = (*Store)(nil)
