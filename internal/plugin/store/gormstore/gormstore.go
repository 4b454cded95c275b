// Package gormstore implements the session and conversation stores on top of
// GORM. The sqlite and postgres plugins share it and differ only in dialect,
// schema and constraint error detection.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chirino/movie-service/internal/model"
	registrystore "github.com/chirino/movie-service/internal/registry/store"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type userRow struct {
	ID        string `gorm:"primaryKey"`
	CreatedAt time.Time
}

func (userRow) TableName() string { return "users" }

type chatRow struct {
	ID        string `gorm:"primaryKey"`
	UserID    string
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (chatRow) TableName() string { return "chat_sessions" }

func (r chatRow) toModel() model.ChatSession {
	status, _ := model.ParseChatStatus(r.Status)
	return model.ChatSession{
		ID:        r.ID,
		UserID:    r.UserID,
		Status:    status,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

type turnRow struct {
	ID        string `gorm:"primaryKey"`
	ThreadID  string
	Seq       int64
	Role      string
	Content   string
	CreatedAt time.Time
}

func (turnRow) TableName() string { return "conversation_turns" }

func (r turnRow) toModel() model.Turn {
	return model.Turn{
		ID:        r.ID,
		ThreadID:  r.ThreadID,
		Seq:       r.Seq,
		Role:      model.Role(r.Role),
		Content:   r.Content,
		CreatedAt: r.CreatedAt,
	}
}

// Store implements registrystore.Store using GORM.
type Store struct {
	name       string
	db         *gorm.DB
	isConflict func(error) bool
}

// New wraps db. isConflict reports whether an error is a unique constraint
// violation in the backend's dialect.
func New(name string, db *gorm.DB, isConflict func(error) bool) *Store {
	if isConflict == nil {
		isConflict = func(error) bool { return false }
	}
	return &Store{name: name, db: db, isConflict: isConflict}
}

// DB exposes the underlying handle for tests and migrations.
func (s *Store) DB() *gorm.DB { return s.db }

func (s *Store) unavailable(err error) error {
	return &registrystore.UnavailableError{Backend: s.name, Err: err}
}

// --- Users ---

func (s *Store) GetUser(ctx context.Context, userID string) (*model.User, error) {
	var row userRow
	err := s.db.WithContext(ctx).Where("id = ?", userID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, s.unavailable(err)
	}
	return &model.User{ID: row.ID, CreatedAt: row.CreatedAt}, nil
}

func (s *Store) CreateUser(ctx context.Context) (string, error) {
	row := userRow{ID: uuid.NewString(), CreatedAt: time.Now().UTC()}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return "", s.unavailable(err)
	}
	return row.ID, nil
}

// --- Chat sessions ---

func (s *Store) GetChatSession(ctx context.Context, chatID, userID string) (*model.ChatSession, error) {
	var row chatRow
	err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", chatID, userID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, s.unavailable(err)
	}
	chat := row.toModel()
	return &chat, nil
}

func (s *Store) CreateChatSession(ctx context.Context, userID string) (string, error) {
	now := time.Now().UTC()
	row := chatRow{
		ID:        uuid.NewString(),
		UserID:    userID,
		Status:    string(model.ChatStatusActive),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return "", s.unavailable(err)
	}
	return row.ID, nil
}

func (s *Store) UpdateStatus(ctx context.Context, chatID, userID string, status model.ChatStatus) (bool, error) {
	result := s.db.WithContext(ctx).Model(&chatRow{}).
		Where("id = ? AND user_id = ?", chatID, userID).
		Updates(map[string]any{"status": string(status), "updated_at": time.Now().UTC()})
	if result.Error != nil {
		return false, s.unavailable(result.Error)
	}
	return result.RowsAffected > 0, nil
}

// --- Conversation turns ---

// AppendTurns numbers turns after the thread's current tail inside one
// transaction. Callers serialize appends per thread; the (thread_id, seq)
// unique constraint turns a lost race into a ConflictError.
func (s *Store) AppendTurns(ctx context.Context, threadID string, turns []model.Turn) ([]model.Turn, error) {
	if len(turns) == 0 {
		return []model.Turn{}, nil
	}
	rows := make([]turnRow, len(turns))
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var tail int64
		if err := tx.Raw("SELECT COALESCE(MAX(seq), 0) FROM conversation_turns WHERE thread_id = ?", threadID).Row().Scan(&tail); err != nil {
			return err
		}
		now := time.Now().UTC()
		for i, t := range turns {
			rows[i] = turnRow{
				ID:        uuid.NewString(),
				ThreadID:  threadID,
				Seq:       tail + int64(i) + 1,
				Role:      string(t.Role),
				Content:   t.Content,
				CreatedAt: now,
			}
		}
		return tx.Create(&rows).Error
	})
	if err != nil {
		if s.isConflict(err) {
			return nil, &registrystore.ConflictError{Message: fmt.Sprintf("concurrent append to thread %s", threadID)}
		}
		return nil, s.unavailable(err)
	}
	out := make([]model.Turn, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}

func (s *Store) ListTurns(ctx context.Context, threadID string) ([]model.Turn, error) {
	var rows []turnRow
	if err := s.db.WithContext(ctx).Where("thread_id = ?", threadID).Order("seq ASC").Find(&rows).Error; err != nil {
		return nil, s.unavailable(err)
	}
	out := make([]model.Turn, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}

// --- Lifecycle ---

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return s.unavailable(err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return s.unavailable(err)
	}
	return nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

var _ registrystore.Store = (*Store)(nil)
