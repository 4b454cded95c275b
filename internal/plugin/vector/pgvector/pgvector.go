// Package pgvector stores movie embeddings in Postgres next to the session
// tables, using the pgvector extension for cosine search.
package pgvector

import (
	"context"
	_ "embed"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/chirino/movie-service/internal/config"
	registrymigrate "github.com/chirino/movie-service/internal/registry/migrate"
	registryvector "github.com/chirino/movie-service/internal/registry/vector"
	pgvec "github.com/pgvector/pgvector-go"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

//go:embed db/schema.sql
var schemaSQL string

// ForceImport is a no-op variable that can be referenced to ensure this package's init() runs.
var ForceImport = 0

func init() {
	registryvector.Register(registryvector.Plugin{
		Name:   "pgvector",
		Loader: load,
	})
	registrymigrate.Register(registrymigrate.Plugin{Order: 200, Migrator: &pgvectorMigrator{}})
}

// SchemaFor renders the schema for a given embedding dimension.
func SchemaFor(dimension int) string {
	return strings.ReplaceAll(schemaSQL, "{{dimension}}", strconv.Itoa(dimension))
}

type pgvectorMigrator struct{}

func (m *pgvectorMigrator) Name() string { return "pgvector-schema" }
func (m *pgvectorMigrator) Migrate(ctx context.Context) error {
	cfg := config.FromContext(ctx)
	if cfg == nil || !cfg.VectorMigrateAtStart || cfg.VectorType != "pgvector" {
		return nil
	}
	if cfg.DatastoreType != "postgres" {
		return fmt.Errorf("pgvector requires the postgres datastore, got %q", cfg.DatastoreType)
	}
	dim := cfg.EmbeddingDimension()
	if dim <= 0 {
		return fmt.Errorf("pgvector: embedding dimension is unknown; enable an embedder")
	}
	log.Info("Running migration", "name", m.Name(), "dimension", dim)
	db, err := openDB(cfg.DBURL)
	if err != nil {
		return fmt.Errorf("pgvector migrate: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()
	return db.WithContext(ctx).Exec(SchemaFor(dim)).Error
}

func load(ctx context.Context) (registryvector.VectorStore, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil {
		return nil, fmt.Errorf("pgvector: missing config in context")
	}
	if cfg.DatastoreType != "postgres" {
		return nil, fmt.Errorf("pgvector requires the postgres datastore, got %q", cfg.DatastoreType)
	}
	db, err := openDB(cfg.DBURL)
	if err != nil {
		return nil, fmt.Errorf("pgvector: %w", err)
	}
	return &Store{db: db}, nil
}

func openDB(dbURL string) (*gorm.DB, error) {
	if dbURL == "" {
		return nil, fmt.Errorf("MOVIE_SERVICE_DB_URL is required")
	}
	return gorm.Open(postgres.Open(dbURL), &gorm.Config{Logger: logger.Discard})
}

// Store implements VectorStore on the movie_embeddings table.
type Store struct {
	db *gorm.DB
}

func (s *Store) IsEnabled() bool { return true }
func (s *Store) Name() string    { return "pgvector" }

func (s *Store) Search(ctx context.Context, embedding []float32, limit int) ([]registryvector.VectorSearchResult, error) {
	if limit <= 0 {
		return []registryvector.VectorSearchResult{}, nil
	}
	vec := pgvec.NewVector(embedding)
	rows, err := s.db.WithContext(ctx).Raw(`
		SELECT movie_id, 1 - (embedding <=> ?::vector) AS score
		FROM movie_embeddings
		ORDER BY embedding <=> ?::vector
		LIMIT ?`,
		vec, vec, limit,
	).Rows()
	if err != nil {
		return nil, fmt.Errorf("pgvector search: %w", err)
	}
	defer rows.Close()

	results := []registryvector.VectorSearchResult{}
	for rows.Next() {
		var r registryvector.VectorSearchResult
		if err := rows.Scan(&r.MovieID, &r.Score); err != nil {
			log.Error("pgvector scan error", "err", err)
			continue
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

func (s *Store) Upsert(ctx context.Context, entries []registryvector.UpsertRequest) error {
	if len(entries) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, e := range entries {
			if err := tx.Exec(`
				INSERT INTO movie_embeddings (movie_id, embedding, content, model, updated_at)
				VALUES (?, ?::vector, ?, ?, now())
				ON CONFLICT (movie_id)
				DO UPDATE SET embedding = EXCLUDED.embedding, content = EXCLUDED.content,
				              model = EXCLUDED.model, updated_at = EXCLUDED.updated_at`,
				e.MovieID, pgvec.NewVector(e.Embedding), e.Content, e.ModelName,
			).Error; err != nil {
				return fmt.Errorf("pgvector upsert movie %d: %w", e.MovieID, err)
			}
		}
		return nil
	})
}

// Version is the row count plus the newest update time, so re-embedding an
// existing movie also moves the marker.
func (s *Store) Version(ctx context.Context) (string, error) {
	var v struct {
		Count int64
		Epoch float64
	}
	err := s.db.WithContext(ctx).Raw(`
		SELECT COUNT(*) AS count,
		       COALESCE(EXTRACT(EPOCH FROM MAX(updated_at)), 0)::float8 AS epoch
		FROM movie_embeddings`).Scan(&v).Error
	if err != nil {
		return "", fmt.Errorf("pgvector version: %w", err)
	}
	return fmt.Sprintf("%d-%.6f", v.Count, v.Epoch), nil
}

var _ registryvector.VectorStore = (*Store)(nil)
