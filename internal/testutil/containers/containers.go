// Package containers starts disposable backing services for plugin tests.
// Every container is terminated when the test finishes.
package containers

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const terminateTimeout = 10 * time.Second

// generic runs req and returns the mapped host:port for port.
func generic(tb testing.TB, name string, req testcontainers.ContainerRequest, port string) string {
	tb.Helper()

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		tb.Fatalf("start %s container: %v", name, err)
	}
	terminateOnCleanup(tb, name, container)

	host, err := container.Host(ctx)
	if err != nil {
		tb.Fatalf("%s host: %v", name, err)
	}
	mapped, err := container.MappedPort(ctx, port)
	if err != nil {
		tb.Fatalf("%s mapped port: %v", name, err)
	}
	return net.JoinHostPort(host, mapped.Port())
}

func terminateOnCleanup(tb testing.TB, name string, container testcontainers.Container) {
	tb.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), terminateTimeout)
		defer cancel()
		if err := container.Terminate(ctx); err != nil {
			tb.Errorf("terminate %s container: %v", name, err)
		}
	})
}

// Qdrant returns the gRPC host:port of a fresh Qdrant.
func Qdrant(tb testing.TB) string {
	tb.Helper()
	return generic(tb, "qdrant", testcontainers.ContainerRequest{
		Image:        "qdrant/qdrant:v1.13.0",
		ExposedPorts: []string{"6334/tcp"},
		WaitingFor:   wait.ForListeningPort("6334/tcp").WithStartupTimeout(60 * time.Second),
	}, "6334/tcp")
}

// retry calls fn until it succeeds or budget runs out.
func retry(ctx context.Context, budget, every time.Duration, fn func(context.Context) error) error {
	deadline := time.Now().Add(budget)
	attempts := 0
	var lastErr error
	for time.Now().Before(deadline) {
		attemptCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		lastErr = fn(attemptCtx)
		cancel()
		attempts++
		if lastErr == nil {
			return nil
		}
		time.Sleep(every)
	}
	if lastErr == nil {
		lastErr = context.DeadlineExceeded
	}
	return fmt.Errorf("not ready after %d attempts: %w", attempts, lastErr)
}
