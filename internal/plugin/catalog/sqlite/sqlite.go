// Package sqlite reads the movie catalog from a SQLite file produced by the
// ingestion tooling. Genres, cast and keywords are stored as JSON arrays.
package sqlite

import (
	"context"
	_ "embed"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chirino/movie-service/internal/config"
	"github.com/chirino/movie-service/internal/model"
	registrycatalog "github.com/chirino/movie-service/internal/registry/catalog"
	registrystore "github.com/chirino/movie-service/internal/registry/store"
	"github.com/mattn/go-sqlite3"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

//go:embed db/schema.sql
var schemaSQL string

// ForceImport is a no-op variable that can be referenced to ensure this package's init() runs.
var ForceImport = 0

func init() {
	registrycatalog.Register(registrycatalog.Plugin{
		Name: "sqlite",
		Loader: func(ctx context.Context) (registrycatalog.CatalogStore, error) {
			cfg := config.FromContext(ctx)
			if cfg == nil {
				return nil, fmt.Errorf("sqlite catalog: missing config")
			}
			return Open(ctx, cfg.CatalogPath)
		},
	})
}

type movieRow struct {
	ID          int64    `gorm:"column:id;primaryKey"`
	Title       string   `gorm:"column:title"`
	Year        *int     `gorm:"column:year"`
	Director    *string  `gorm:"column:director"`
	Overview    *string  `gorm:"column:overview"`
	Rating      *float64 `gorm:"column:rating"`
	Genres      []string `gorm:"column:genres;serializer:json"`
	Cast        []string `gorm:"column:cast;serializer:json"`
	Keywords    []string `gorm:"column:keywords;serializer:json"`
	Budget      *int64   `gorm:"column:budget"`
	Revenue     *int64   `gorm:"column:revenue"`
	Runtime     *int     `gorm:"column:runtime"`
	Popularity  *float64 `gorm:"column:popularity"`
	VoteCount   *int     `gorm:"column:vote_count"`
	ReleaseDate *string  `gorm:"column:release_date"`
}

func (movieRow) TableName() string { return "movies" }

func (r movieRow) record() model.MovieRecord {
	return model.MovieRecord{
		ID:          r.ID,
		Title:       r.Title,
		Year:        deref(r.Year),
		ReleaseDate: deref(r.ReleaseDate),
		Director:    deref(r.Director),
		Genres:      r.Genres,
		Cast:        r.Cast,
		Keywords:    r.Keywords,
		Overview:    deref(r.Overview),
		Rating:      deref(r.Rating),
		Popularity:  deref(r.Popularity),
		VoteCount:   deref(r.VoteCount),
		Revenue:     deref(r.Revenue),
		Budget:      deref(r.Budget),
		Runtime:     deref(r.Runtime),
	}
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

// Store is a read-mostly CatalogStore over a SQLite movies table.
type Store struct {
	db   *gorm.DB
	path string
}

// Open opens the catalog at path, creating an empty movies table when the
// file is new.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite catalog: path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite catalog: create dir: %w", err)
		}
	}
	db, err := gorm.Open(sqlite.Open("file:"+path+"?_busy_timeout=5000"), &gorm.Config{Logger: logger.Discard})
	if err != nil {
		return nil, fmt.Errorf("sqlite catalog: open: %w", err)
	}
	if err := db.WithContext(ctx).Exec(schemaSQL).Error; err != nil {
		return nil, fmt.Errorf("sqlite catalog: schema: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// DB exposes the underlying handle for loading fixtures.
func (s *Store) DB() *gorm.DB { return s.db }

// escapeLike makes user input literal inside a LIKE pattern using '\' as the
// escape character.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func (s *Store) Scan(ctx context.Context, f registrycatalog.BaseFilter) ([]model.MovieRecord, error) {
	q := s.db.WithContext(ctx).Model(&movieRow{})
	if f.Year != nil {
		q = q.Where("year = ?", *f.Year)
	} else {
		if f.YearMin != nil {
			q = q.Where("year >= ?", *f.YearMin)
		}
		if f.YearMax != nil {
			q = q.Where("year <= ?", *f.YearMax)
		}
	}
	if f.Director != "" {
		q = q.Where(`LOWER(director) LIKE ? ESCAPE '\'`, "%"+escapeLike(strings.ToLower(f.Director))+"%")
	}
	if f.Title != "" {
		q = q.Where(`LOWER(title) LIKE ? ESCAPE '\'`, "%"+escapeLike(strings.ToLower(f.Title))+"%")
	}

	var rows []movieRow
	if err := q.Order("id").Find(&rows).Error; err != nil {
		err = fmt.Errorf("sqlite catalog: scan: %w", err)
		if isEvalError(err) {
			return nil, &registrystore.QueryError{Err: err}
		}
		return nil, err
	}
	out := make([]model.MovieRecord, len(rows))
	for i, r := range rows {
		out[i] = r.record()
	}
	return out, nil
}

func (s *Store) GetByIDs(ctx context.Context, ids []int64) (map[int64]model.MovieRecord, error) {
	out := make(map[int64]model.MovieRecord, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []movieRow
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("sqlite catalog: get by ids: %w", err)
	}
	for _, r := range rows {
		out[r.ID] = r.record()
	}
	return out, nil
}

func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&movieRow{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("sqlite catalog: count: %w", err)
	}
	return n, nil
}

// Version fingerprints the catalog file without querying it: modification
// time and size, the change counter SQLite keeps at header offset 24, and the
// write-ahead log's size and mtime when one exists.
func (s *Store) Version(context.Context) (string, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return "", fmt.Errorf("sqlite catalog: open for version: %w", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("sqlite catalog: stat: %w", err)
	}
	var counter uint32
	var header [28]byte
	if _, err := io.ReadFull(f, header[:]); err == nil {
		counter = binary.BigEndian.Uint32(header[24:])
	}
	v := fmt.Sprintf("%d-%d-%d", info.ModTime().UnixNano(), info.Size(), counter)
	if wal, err := os.Stat(s.path + "-wal"); err == nil {
		v += fmt.Sprintf("-%d-%d", wal.ModTime().UnixNano(), wal.Size())
	}
	return v, nil
}

// isEvalError reports whether SQLite rejected the statement itself rather
// than failing to run it.
func isEvalError(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code {
	case sqlite3.ErrError, sqlite3.ErrMismatch, sqlite3.ErrRange, sqlite3.ErrTooBig:
		return true
	}
	return false
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

var _ registrycatalog.CatalogStore = (*Store)(nil)
