// Package sqlitevec keeps movie embeddings in a sqlite-vec virtual table so
// single-node deployments get vector search without an external service.
package sqlitevec

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	"github.com/charmbracelet/log"
	"github.com/chirino/movie-service/internal/config"
	registrymigrate "github.com/chirino/movie-service/internal/registry/migrate"
	registryvector "github.com/chirino/movie-service/internal/registry/vector"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const indexFile = "index.db"

var autoOnce sync.Once

func init() {
	registryvector.Register(registryvector.Plugin{
		Name: "sqlitevec",
		Loader: func(ctx context.Context) (registryvector.VectorStore, error) {
			cfg := config.FromContext(ctx)
			if cfg == nil {
				return nil, fmt.Errorf("sqlitevec: missing config")
			}
			return Open(ctx, cfg.VectorPath, cfg.EmbeddingDimension())
		},
	})
	registrymigrate.Register(registrymigrate.Plugin{Order: 200, Migrator: &migrator{}})
}

// Store is a sqlite-vec backed VectorStore.
type Store struct {
	db   *gorm.DB
	path string
	dim  int
}

// Open opens (and creates when absent) the index under dir. The vec0 table is
// created on open so the store also works without running migrations.
func Open(ctx context.Context, dir string, dimension int) (*Store, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("sqlitevec: embedding dimension is unknown; enable an embedder")
	}
	if dir == "" {
		return nil, fmt.Errorf("sqlitevec: MOVIE_SERVICE_VECTOR_PATH is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("sqlitevec: create dir: %w", err)
	}
	autoOnce.Do(sqlite_vec.Auto)

	path := filepath.Join(dir, indexFile)
	db, err := gorm.Open(sqlite.Open("file:"+path+"?_busy_timeout=5000"), &gorm.Config{Logger: logger.Discard})
	if err != nil {
		return nil, fmt.Errorf("sqlitevec: open: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("sqlitevec: underlying db: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	s := &Store{db: db, path: path, dim: dimension}
	if err := s.ensureTable(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureTable(ctx context.Context) error {
	ddl := fmt.Sprintf(`CREATE VIRTUAL TABLE IF NOT EXISTS movie_embeddings USING vec0(
	movie_id INTEGER PRIMARY KEY,
	embedding float[%d] distance_metric=cosine
)`, s.dim)
	if err := s.db.WithContext(ctx).Exec(ddl).Error; err != nil {
		return fmt.Errorf("sqlitevec: create table: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) IsEnabled() bool { return true }
func (s *Store) Name() string    { return "sqlitevec" }

type hit struct {
	MovieID  int64
	Distance float64
}

func (s *Store) Search(ctx context.Context, embedding []float32, limit int) ([]registryvector.VectorSearchResult, error) {
	if limit <= 0 {
		return []registryvector.VectorSearchResult{}, nil
	}
	blob, err := sqlite_vec.SerializeFloat32(embedding)
	if err != nil {
		return nil, fmt.Errorf("sqlitevec: serialize query: %w", err)
	}
	var hits []hit
	err = s.db.WithContext(ctx).Raw(
		`SELECT movie_id, distance FROM movie_embeddings WHERE embedding MATCH ? AND k = ? ORDER BY distance`,
		blob, limit,
	).Scan(&hits).Error
	if err != nil {
		return nil, fmt.Errorf("sqlitevec: search: %w", err)
	}
	results := make([]registryvector.VectorSearchResult, len(hits))
	for i, h := range hits {
		results[i] = registryvector.VectorSearchResult{MovieID: h.MovieID, Score: 1 - h.Distance}
	}
	return results, nil
}

// Upsert replaces rows one movie at a time; vec0 has no ON CONFLICT support.
func (s *Store) Upsert(ctx context.Context, entries []registryvector.UpsertRequest) error {
	if len(entries) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, e := range entries {
			if len(e.Embedding) != s.dim {
				return fmt.Errorf("sqlitevec: movie %d embedding has %d dims, index expects %d", e.MovieID, len(e.Embedding), s.dim)
			}
			blob, err := sqlite_vec.SerializeFloat32(e.Embedding)
			if err != nil {
				return fmt.Errorf("sqlitevec: serialize movie %d: %w", e.MovieID, err)
			}
			if err := tx.Exec(`DELETE FROM movie_embeddings WHERE movie_id = ?`, e.MovieID).Error; err != nil {
				return fmt.Errorf("sqlitevec: delete movie %d: %w", e.MovieID, err)
			}
			if err := tx.Exec(`INSERT INTO movie_embeddings(movie_id, embedding) VALUES (?, ?)`, e.MovieID, blob).Error; err != nil {
				return fmt.Errorf("sqlitevec: insert movie %d: %w", e.MovieID, err)
			}
		}
		return nil
	})
}

// Version is the index file's modification time plus its row count.
func (s *Store) Version(ctx context.Context) (string, error) {
	info, err := os.Stat(s.path)
	if err != nil {
		return "", fmt.Errorf("sqlitevec: stat index: %w", err)
	}
	var count int64
	if err := s.db.WithContext(ctx).Raw(`SELECT COUNT(*) FROM movie_embeddings`).Scan(&count).Error; err != nil {
		return "", fmt.Errorf("sqlitevec: count: %w", err)
	}
	return fmt.Sprintf("%d-%d", info.ModTime().UnixNano(), count), nil
}

type migrator struct{}

func (m *migrator) Name() string { return "sqlitevec-schema" }
func (m *migrator) Migrate(ctx context.Context) error {
	cfg := config.FromContext(ctx)
	if cfg == nil || !cfg.VectorMigrateAtStart || cfg.VectorType != "sqlitevec" {
		return nil
	}
	log.Info("Running migration", "name", m.Name(), "dimension", cfg.EmbeddingDimension())
	s, err := Open(ctx, cfg.VectorPath, cfg.EmbeddingDimension())
	if err != nil {
		return err
	}
	return s.Close()
}

var _ registryvector.VectorStore = (*Store)(nil)
