package service

import (
	"context"
	"errors"
	"testing"

	"github.com/chirino/movie-service/internal/agent"
	"github.com/chirino/movie-service/internal/plugin/cache/noop"
	"github.com/stretchr/testify/assert"
)

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

type pingCache struct {
	noop.Cache
	err error
}

func (c pingCache) Available() bool            { return true }
func (c pingCache) Ping(context.Context) error { return c.err }

func TestHealthChecker(t *testing.T) {
	ok := pingFunc(func(context.Context) error { return nil })
	down := pingFunc(func(context.Context) error { return errors.New("down") })

	report := NewHealthChecker(ok, pingCache{}, &echoAgent{}).Check(context.Background())
	assert.Equal(t, HealthReport{Status: StatusHealthy, Database: "connected", Cache: "connected", Agent: "initialized"}, report)

	report = NewHealthChecker(down, noop.Cache{}, agent.Disabled{}).Check(context.Background())
	assert.Equal(t, StatusDegraded, report.Status)
	assert.Equal(t, "error", report.Database)
	assert.Equal(t, "not_initialized", report.Cache)
	assert.Equal(t, "not_initialized", report.Agent)

	report = NewHealthChecker(ok, pingCache{err: errors.New("refused")}, &echoAgent{}).Check(context.Background())
	assert.Equal(t, StatusDegraded, report.Status)
	assert.Equal(t, "error", report.Cache)
}
