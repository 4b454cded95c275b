package containers

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Postgres returns the DSN of a fresh Postgres with the pgvector extension
// available, usable by both the session store and the pgvector plugin.
func Postgres(tb testing.TB) string {
	tb.Helper()

	ctx := context.Background()
	container, err := postgres.Run(ctx, "pgvector/pgvector:pg17",
		postgres.WithDatabase("movies"),
		postgres.WithUsername("movies"),
		postgres.WithPassword("movies"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		tb.Fatalf("start postgres container: %v", err)
	}
	terminateOnCleanup(tb, "postgres", container)

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		tb.Fatalf("postgres connection string: %v", err)
	}
	err = retry(ctx, 20*time.Second, 250*time.Millisecond, func(ctx context.Context) error {
		conn, err := pgx.Connect(ctx, dsn)
		if err != nil {
			return err
		}
		defer conn.Close(ctx)
		return conn.Ping(ctx)
	})
	if err != nil {
		tb.Fatalf("postgres: %v", err)
	}
	return dsn
}

// Mongo returns the connection URI of a fresh MongoDB.
func Mongo(tb testing.TB) string {
	tb.Helper()

	ctx := context.Background()
	container, err := mongodb.Run(ctx, "mongo:7")
	if err != nil {
		tb.Fatalf("start mongodb container: %v", err)
	}
	terminateOnCleanup(tb, "mongodb", container)

	uri, err := container.ConnectionString(ctx)
	if err != nil {
		tb.Fatalf("mongodb connection string: %v", err)
	}
	return uri
}
