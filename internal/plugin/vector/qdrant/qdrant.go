// Package qdrant keeps movie embeddings in a Qdrant collection over gRPC.
package qdrant

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/chirino/movie-service/internal/config"
	registrymigrate "github.com/chirino/movie-service/internal/registry/migrate"
	registryvector "github.com/chirino/movie-service/internal/registry/vector"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

// ForceImport is a no-op variable that can be referenced to ensure this package's init() runs.
var ForceImport = 0

const movieIDField = "movie_id"

type qdrantMigrator struct{}

func (m *qdrantMigrator) Name() string { return "qdrant-collection" }
func (m *qdrantMigrator) Migrate(ctx context.Context) error {
	cfg := config.FromContext(ctx)
	if cfg == nil || cfg.VectorType != "qdrant" || !cfg.VectorMigrateAtStart {
		return nil
	}
	dim := cfg.EmbeddingDimension()
	if dim <= 0 {
		return fmt.Errorf("qdrant migrate: embedding dimension is unknown; enable an embedder")
	}

	log.Info("Running migration", "name", m.Name(), "dimension", dim)
	migrateCtx, cancel := context.WithTimeout(ctx, cfg.QdrantStartupTimeout)
	defer cancel()

	conn, err := grpc.NewClient(cfg.QdrantAddress(), dialOptions(cfg)...)
	if err != nil {
		return fmt.Errorf("qdrant migrate: connect: %w", err)
	}
	defer conn.Close()

	client := pb.NewCollectionsClient(conn)
	name := collectionName(cfg)
	if _, err := client.Get(migrateCtx, &pb.GetCollectionInfoRequest{CollectionName: name}); err == nil {
		return nil
	}

	_, err = client.Create(migrateCtx, &pb.CreateCollection{
		CollectionName: name,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(dim),
					Distance: pb.Distance_Cosine,
				},
			},
		},
		HnswConfig: &pb.HnswConfigDiff{
			M:                 newUint64(16),
			EfConstruct:       newUint64(64),
			FullScanThreshold: newUint64(10000),
		},
	})
	if err != nil {
		return fmt.Errorf("qdrant migrate: create collection: %w", err)
	}
	log.Info("Created Qdrant collection", "name", name)
	return nil
}

func init() {
	registryvector.Register(registryvector.Plugin{
		Name:   "qdrant",
		Loader: load,
	})
	registrymigrate.Register(registrymigrate.Plugin{Order: 200, Migrator: &qdrantMigrator{}})
}

func load(ctx context.Context) (registryvector.VectorStore, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil {
		return nil, fmt.Errorf("qdrant: missing config in context")
	}
	conn, err := grpc.NewClient(cfg.QdrantAddress(), dialOptions(cfg)...)
	if err != nil {
		return nil, fmt.Errorf("qdrant: connect: %w", err)
	}
	return &Store{
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		conn:        conn,
		collection:  collectionName(cfg),
	}, nil
}

// Store implements VectorStore with one point per movie, keyed by movie ID.
type Store struct {
	points      pb.PointsClient
	collections pb.CollectionsClient
	conn        *grpc.ClientConn
	collection  string
	generation  atomic.Uint64
}

func (s *Store) IsEnabled() bool { return true }
func (s *Store) Name() string    { return "qdrant" }

// Close releases the gRPC connection.
func (s *Store) Close() error { return s.conn.Close() }

func (s *Store) Search(ctx context.Context, embedding []float32, limit int) ([]registryvector.VectorSearchResult, error) {
	if limit <= 0 {
		return []registryvector.VectorSearchResult{}, nil
	}
	resp, err := s.points.Search(ctx, &pb.SearchPoints{
		CollectionName: s.collection,
		Vector:         embedding,
		Limit:          uint64(limit),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant search: %w", err)
	}

	results := make([]registryvector.VectorSearchResult, 0, len(resp.GetResult()))
	for _, pt := range resp.GetResult() {
		id, ok := movieID(pt)
		if !ok {
			continue
		}
		results = append(results, registryvector.VectorSearchResult{MovieID: id, Score: float64(pt.GetScore())})
	}
	return results, nil
}

func movieID(pt *pb.ScoredPoint) (int64, bool) {
	if v, ok := pt.GetPayload()[movieIDField]; ok {
		if _, isInt := v.GetKind().(*pb.Value_IntegerValue); isInt {
			return v.GetIntegerValue(), true
		}
	}
	if num, ok := pt.GetId().GetPointIdOptions().(*pb.PointId_Num); ok {
		return int64(num.Num), true
	}
	return 0, false
}

func (s *Store) Upsert(ctx context.Context, entries []registryvector.UpsertRequest) error {
	if len(entries) == 0 {
		return nil
	}
	points := make([]*pb.PointStruct, len(entries))
	for i, e := range entries {
		if e.MovieID < 0 {
			return fmt.Errorf("qdrant: movie id %d is negative", e.MovieID)
		}
		points[i] = &pb.PointStruct{
			Id: &pb.PointId{PointIdOptions: &pb.PointId_Num{Num: uint64(e.MovieID)}},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: e.Embedding},
				},
			},
			Payload: map[string]*pb.Value{
				movieIDField: {Kind: &pb.Value_IntegerValue{IntegerValue: e.MovieID}},
				"content":    {Kind: &pb.Value_StringValue{StringValue: e.Content}},
				"model":      {Kind: &pb.Value_StringValue{StringValue: e.ModelName}},
			},
		}
	}
	wait := true
	if _, err := s.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points:         points,
	}); err != nil {
		return fmt.Errorf("qdrant upsert: %w", err)
	}
	s.generation.Add(1)
	return nil
}

// Version combines the collection point count with a counter bumped on every
// upsert made through this process.
func (s *Store) Version(ctx context.Context) (string, error) {
	info, err := s.collections.Get(ctx, &pb.GetCollectionInfoRequest{CollectionName: s.collection})
	if err != nil {
		return "", fmt.Errorf("qdrant collection info: %w", err)
	}
	return fmt.Sprintf("%d-%d", info.GetResult().GetPointsCount(), s.generation.Load()), nil
}

func newUint64(v uint64) *uint64 {
	return &v
}

func dialOptions(cfg *config.Config) []grpc.DialOption {
	opts := make([]grpc.DialOption, 0, 2)
	if cfg.QdrantUseTLS {
		opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(nil)))
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}
	if strings.TrimSpace(cfg.QdrantAPIKey) != "" {
		opts = append(opts, grpc.WithPerRPCCredentials(apiKeyCredentials{
			apiKey:     cfg.QdrantAPIKey,
			requireTLS: cfg.QdrantUseTLS,
		}))
	}
	return opts
}

type apiKeyCredentials struct {
	apiKey     string
	requireTLS bool
}

func (a apiKeyCredentials) GetRequestMetadata(context.Context, ...string) (map[string]string, error) {
	return map[string]string{"api-key": a.apiKey}, nil
}

func (a apiKeyCredentials) RequireTransportSecurity() bool {
	return a.requireTLS
}

func collectionName(cfg *config.Config) string {
	if name := strings.TrimSpace(cfg.QdrantCollectionName); name != "" {
		return name
	}
	return "movies"
}

var _ registryvector.VectorStore = (*Store)(nil)
