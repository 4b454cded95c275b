package service

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chirino/movie-service/internal/agent"
	"github.com/chirino/movie-service/internal/monitoring"
	registrycache "github.com/chirino/movie-service/internal/registry/cache"
)

const (
	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"
)

// Pinger is anything with a reachability check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthReport is the body of the health endpoint.
type HealthReport struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Cache    string `json:"cache"`
	Agent    string `json:"agent"`
}

// HealthChecker probes the durable store, the fast cache and the agent.
type HealthChecker struct {
	database Pinger
	cache    registrycache.FastCache
	agent    agent.Agent
	timeout  time.Duration
}

// NewHealthChecker creates a checker. cache may be nil.
func NewHealthChecker(database Pinger, cache registrycache.FastCache, a agent.Agent) *HealthChecker {
	return &HealthChecker{database: database, cache: cache, agent: a, timeout: 3 * time.Second}
}

// Check probes every component, updates the service health gauges and
// reports "degraded" if any component failed.
func (h *HealthChecker) Check(ctx context.Context) HealthReport {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	report := HealthReport{Status: StatusHealthy}
	degrade := func(component string, ok bool) {
		monitoring.SetServiceHealth(component, ok)
		if !ok {
			report.Status = StatusDegraded
		}
	}

	if err := h.database.Ping(ctx); err != nil {
		log.Error("Database health check failed", "err", err)
		report.Database = "error"
		degrade("database", false)
	} else {
		report.Database = "connected"
		degrade("database", true)
	}

	switch {
	case h.cache == nil || !h.cache.Available():
		report.Cache = "not_initialized"
		degrade("cache", false)
	default:
		if err := h.cache.Ping(ctx); err != nil {
			log.Error("Cache health check failed", "err", err)
			report.Cache = "error"
			degrade("cache", false)
		} else {
			report.Cache = "connected"
			degrade("cache", true)
		}
	}

	switch {
	case h.agent == nil:
		report.Agent = "not_initialized"
		degrade("agent", false)
	default:
		if err := h.agent.Ping(ctx); err != nil {
			log.Debug("Agent health check failed", "agent", h.agent.Name(), "err", err)
			report.Agent = "not_initialized"
			degrade("agent", false)
		} else {
			report.Agent = "initialized"
			degrade("agent", true)
		}
	}
	return report
}
