package containers

import (
	"context"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Redis returns a redis:// URL for a fresh Redis.
func Redis(tb testing.TB) string {
	tb.Helper()
	addr := generic(tb, "redis", testcontainers.ContainerRequest{
		Image:        "redis:7",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(60 * time.Second),
	}, "6379/tcp")
	return "redis://" + addr
}

// Infinispan holds connection details for a running Infinispan server.
type Infinispan struct {
	Host     string // host:port
	Username string
	Password string
}

// StartInfinispan starts Infinispan with its RESP connector and waits until
// the connector answers PING.
func StartInfinispan(tb testing.TB) Infinispan {
	tb.Helper()
	ispn := Infinispan{Username: "admin", Password: "password"}
	ispn.Host = generic(tb, "infinispan", testcontainers.ContainerRequest{
		Image:        "quay.io/infinispan/server:15.2",
		ExposedPorts: []string{"11222/tcp"},
		Env:          map[string]string{"USER": ispn.Username, "PASS": ispn.Password},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort("11222/tcp"),
			wait.ForLog("Started connector Resp"),
		).WithDeadline(90 * time.Second),
	}, "11222/tcp")

	// RESP3 HELLO is not understood by Infinispan.
	client := goredis.NewClient(&goredis.Options{
		Addr:     ispn.Host,
		Username: ispn.Username,
		Password: ispn.Password,
		Protocol: 2,
	})
	defer client.Close()
	err := retry(context.Background(), 60*time.Second, time.Second, func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	})
	if err != nil {
		tb.Fatalf("infinispan RESP: %v", err)
	}
	return ispn
}
