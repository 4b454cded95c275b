package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chirino/movie-service/internal/config"
	"github.com/chirino/movie-service/internal/model"
	registrymigrate "github.com/chirino/movie-service/internal/registry/migrate"
	registrystore "github.com/chirino/movie-service/internal/registry/store"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const dbName = "movie_service"

func init() {
	registrystore.Register(registrystore.Plugin{
		Name: "mongo",
		Loader: func(ctx context.Context) (registrystore.Store, error) {
			cfg := config.FromContext(ctx)
			opts := options.Client().ApplyURI(cfg.DBURL)
			if cfg.DBMaxOpenConns > 0 {
				opts.SetMaxPoolSize(uint64(cfg.DBMaxOpenConns))
			}
			if cfg.DBMaxIdleConns > 0 {
				opts.SetMinPoolSize(uint64(cfg.DBMaxIdleConns))
			}
			client, err := mongo.Connect(opts)
			if err != nil {
				return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
			}
			if err := client.Ping(ctx, nil); err != nil {
				return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
			}
			return &MongoStore{client: client, db: client.Database(dbName)}, nil
		},
	})

	registrymigrate.Register(registrymigrate.Plugin{Order: 100, Migrator: &mongoMigrator{}})
}

type mongoMigrator struct{}

func (m *mongoMigrator) Name() string { return "mongo-schema" }
func (m *mongoMigrator) Migrate(ctx context.Context) error {
	cfg := config.FromContext(ctx)
	if cfg == nil || !cfg.DatastoreMigrateAtStart {
		return nil
	}
	if cfg.DatastoreType != "mongo" {
		return nil // skip if not using mongo
	}

	log.Info("Running migration", "name", m.Name())
	client, err := mongo.Connect(options.Client().ApplyURI(cfg.DBURL))
	if err != nil {
		return fmt.Errorf("mongo migration: failed to connect: %w", err)
	}
	defer client.Disconnect(ctx)

	db := client.Database(dbName)

	collections := map[string][]mongo.IndexModel{
		"users": nil,
		"chat_sessions": {
			{Keys: bson.D{{Key: "user_id", Value: 1}}},
		},
		"conversation_turns": {
			{
				Keys:    bson.D{{Key: "thread_id", Value: 1}, {Key: "seq", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
	}

	for name, indexes := range collections {
		// Ensure collection exists; an existing one is fine.
		_ = db.CreateCollection(ctx, name)
		if len(indexes) > 0 {
			if _, err := db.Collection(name).Indexes().CreateMany(ctx, indexes); err != nil {
				return fmt.Errorf("mongo migration: failed to create indexes for %s: %w", name, err)
			}
		}
	}

	log.Info("MongoDB schema migration complete")
	return nil
}

// ForceImport is a no-op variable that can be referenced to ensure this package's init() runs.
var ForceImport = 0

type userDoc struct {
	ID        string    `bson:"_id"`
	CreatedAt time.Time `bson:"created_at"`
}

type chatDoc struct {
	ID        string    `bson:"_id"`
	UserID    string    `bson:"user_id"`
	Status    string    `bson:"status"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

type turnDoc struct {
	ID        string    `bson:"_id"`
	ThreadID  string    `bson:"thread_id"`
	Seq       int64     `bson:"seq"`
	Role      string    `bson:"role"`
	Content   string    `bson:"content"`
	CreatedAt time.Time `bson:"created_at"`
}

func (d turnDoc) toModel() model.Turn {
	return model.Turn{
		ID:        d.ID,
		ThreadID:  d.ThreadID,
		Seq:       d.Seq,
		Role:      model.Role(d.Role),
		Content:   d.Content,
		CreatedAt: d.CreatedAt,
	}
}

// MongoStore implements Store using MongoDB.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

func (s *MongoStore) users() *mongo.Collection { return s.db.Collection("users") }
func (s *MongoStore) chats() *mongo.Collection { return s.db.Collection("chat_sessions") }
func (s *MongoStore) turns() *mongo.Collection { return s.db.Collection("conversation_turns") }

func unavailable(err error) error {
	return &registrystore.UnavailableError{Backend: "mongo", Err: err}
}

// --- Users ---

func (s *MongoStore) GetUser(ctx context.Context, userID string) (*model.User, error) {
	var doc userDoc
	err := s.users().FindOne(ctx, bson.M{"_id": userID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable(err)
	}
	return &model.User{ID: doc.ID, CreatedAt: doc.CreatedAt}, nil
}

func (s *MongoStore) CreateUser(ctx context.Context) (string, error) {
	doc := userDoc{ID: uuid.NewString(), CreatedAt: time.Now().UTC()}
	if _, err := s.users().InsertOne(ctx, doc); err != nil {
		return "", unavailable(err)
	}
	return doc.ID, nil
}

// --- Chat sessions ---

func (s *MongoStore) GetChatSession(ctx context.Context, chatID, userID string) (*model.ChatSession, error) {
	var doc chatDoc
	err := s.chats().FindOne(ctx, bson.M{"_id": chatID, "user_id": userID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable(err)
	}
	status, _ := model.ParseChatStatus(doc.Status)
	return &model.ChatSession{
		ID:        doc.ID,
		UserID:    doc.UserID,
		Status:    status,
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}, nil
}

func (s *MongoStore) CreateChatSession(ctx context.Context, userID string) (string, error) {
	now := time.Now().UTC()
	doc := chatDoc{
		ID:        uuid.NewString(),
		UserID:    userID,
		Status:    string(model.ChatStatusActive),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := s.chats().InsertOne(ctx, doc); err != nil {
		return "", unavailable(err)
	}
	return doc.ID, nil
}

func (s *MongoStore) UpdateStatus(ctx context.Context, chatID, userID string, status model.ChatStatus) (bool, error) {
	res, err := s.chats().UpdateOne(ctx,
		bson.M{"_id": chatID, "user_id": userID},
		bson.M{"$set": bson.M{"status": string(status), "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return false, unavailable(err)
	}
	return res.MatchedCount > 0, nil
}

// --- Conversation turns ---

// AppendTurns numbers turns after the thread's tail. Appends are serialized
// per thread by the caller; the unique (thread_id, seq) index rejects a lost
// race as a ConflictError.
func (s *MongoStore) AppendTurns(ctx context.Context, threadID string, turns []model.Turn) ([]model.Turn, error) {
	if len(turns) == 0 {
		return []model.Turn{}, nil
	}
	var tail turnDoc
	err := s.turns().FindOne(ctx, bson.M{"thread_id": threadID},
		options.FindOne().SetSort(bson.D{{Key: "seq", Value: -1}})).Decode(&tail)
	if err != nil && !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, unavailable(err)
	}

	now := time.Now().UTC()
	docs := make([]turnDoc, len(turns))
	for i, t := range turns {
		docs[i] = turnDoc{
			ID:        uuid.NewString(),
			ThreadID:  threadID,
			Seq:       tail.Seq + int64(i) + 1,
			Role:      string(t.Role),
			Content:   t.Content,
			CreatedAt: now,
		}
	}
	if _, err := s.turns().InsertMany(ctx, docs); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, &registrystore.ConflictError{Message: fmt.Sprintf("concurrent append to thread %s", threadID)}
		}
		return nil, unavailable(err)
	}
	out := make([]model.Turn, len(docs))
	for i, d := range docs {
		out[i] = d.toModel()
	}
	return out, nil
}

func (s *MongoStore) ListTurns(ctx context.Context, threadID string) ([]model.Turn, error) {
	cursor, err := s.turns().Find(ctx, bson.M{"thread_id": threadID},
		options.Find().SetSort(bson.D{{Key: "seq", Value: 1}}))
	if err != nil {
		return nil, unavailable(err)
	}
	var docs []turnDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, unavailable(err)
	}
	out := make([]model.Turn, len(docs))
	for i, d := range docs {
		out[i] = d.toModel()
	}
	return out, nil
}

// --- Lifecycle ---

func (s *MongoStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx, nil); err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

var _ registrystore.Store = (*MongoStore)(nil)
