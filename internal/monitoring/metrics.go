package monitoring

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpErrorsTotal     *prometheus.CounterVec

	// StoreLatency can be used by store implementations to record operation latency.
	StoreLatency *prometheus.HistogramVec

	queryCacheEvents *prometheus.CounterVec
	queryCacheSize   *prometheus.GaugeVec

	sessionCacheHits   *prometheus.CounterVec
	sessionCacheMisses *prometheus.CounterVec
	fastCacheErrors    *prometheus.CounterVec
	breakerState       *prometheus.GaugeVec

	conversationLocks prometheus.Gauge
	serviceHealth     *prometheus.GaugeVec

	// DBPoolOpenConnections tracks the number of currently open database connections.
	DBPoolOpenConnections prometheus.Gauge

	// DBPoolMaxConnections tracks the configured maximum database connections.
	DBPoolMaxConnections prometheus.Gauge
)

var validLabelKey = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ParseMetricsLabels parses a comma-separated list of key=value pairs into
// Prometheus labels. Values support ${VAR} / $VAR environment variable expansion.
// Label values may not contain commas. Returns nil for an empty string.
func ParseMetricsLabels(s string) (prometheus.Labels, error) {
	s = os.Expand(s, os.Getenv)
	if s == "" {
		return nil, nil
	}
	labels := prometheus.Labels{}
	for _, pair := range strings.Split(s, ",") {
		idx := strings.IndexByte(pair, '=')
		if idx < 0 {
			return nil, fmt.Errorf("invalid label %q: expected key=value", pair)
		}
		k, v := pair[:idx], pair[idx+1:]
		if !validLabelKey.MatchString(k) {
			return nil, fmt.Errorf("invalid label key %q: must match [a-zA-Z_][a-zA-Z0-9_]*", k)
		}
		labels[k] = v
	}
	return labels, nil
}

var initMetricsOnce sync.Once

// InitMetrics registers all Prometheus metrics with the given constant labels.
// Must be called before starting the HTTP server or any store/cache initialization
// that records metrics. Safe to call multiple times; only the first call registers.
func InitMetrics(constLabels prometheus.Labels) {
	initMetricsOnce.Do(func() {
		initMetricsInner(constLabels)
	})
}

func initMetricsInner(constLabels prometheus.Labels) {
	reg := prometheus.WrapRegistererWith(constLabels, prometheus.DefaultRegisterer)
	f := promauto.With(reg)

	httpRequestsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "movie_service_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "status"},
	)

	httpRequestDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "movie_service_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	httpErrorsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "movie_service_http_errors_total",
			Help: "HTTP error responses by handler and error type",
		},
		[]string{"method", "handler", "status_code", "error_type"},
	)

	StoreLatency = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "movie_service_store_latency_seconds",
			Help:    "Store operation latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	queryCacheEvents = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "movie_service_query_cache_events_total",
			Help: "Query cache hits, misses, evictions and invalidations",
		},
		[]string{"cache", "event"},
	)

	queryCacheSize = f.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "movie_service_query_cache_entries",
			Help: "Number of entries held by each query cache",
		},
		[]string{"cache"},
	)

	sessionCacheHits = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "movie_service_session_cache_hits_total",
			Help: "Session cache hits by key kind",
		},
		[]string{"kind"},
	)

	sessionCacheMisses = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "movie_service_session_cache_misses_total",
			Help: "Session cache misses by key kind",
		},
		[]string{"kind"},
	)

	fastCacheErrors = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "movie_service_fast_cache_errors_total",
			Help: "Fast cache operations that failed and were treated as misses",
		},
		[]string{"operation"},
	)

	breakerState = f.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "movie_service_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	conversationLocks = f.NewGauge(prometheus.GaugeOpts{
		Name: "movie_service_conversation_locks",
		Help: "Number of conversation locks held in the registry",
	})

	serviceHealth = f.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "movie_service_service_health",
			Help: "Component health (1=healthy, 0=unhealthy)",
		},
		[]string{"component"},
	)

	DBPoolOpenConnections = f.NewGauge(prometheus.GaugeOpts{
		Name: "movie_service_db_pool_open_connections",
		Help: "Number of open database connections",
	})

	DBPoolMaxConnections = f.NewGauge(prometheus.GaugeOpts{
		Name: "movie_service_db_pool_max_connections",
		Help: "Maximum number of database connections",
	})
}

// Query cache event names.
const (
	CacheEventHit        = "hit"
	CacheEventMiss       = "miss"
	CacheEventEviction   = "eviction"
	CacheEventInvalidate = "invalidate"
)

// RecordQueryCacheEvent counts one event for the named query cache.
func RecordQueryCacheEvent(cache, event string) {
	if queryCacheEvents == nil {
		return
	}
	queryCacheEvents.WithLabelValues(cache, event).Inc()
}

// SetQueryCacheSize reports the current entry count of the named query cache.
func SetQueryCacheSize(cache string, n int) {
	if queryCacheSize == nil {
		return
	}
	queryCacheSize.WithLabelValues(cache).Set(float64(n))
}

// RecordSessionCache counts a session cache lookup for the given key kind.
func RecordSessionCache(kind string, hit bool) {
	if sessionCacheHits == nil {
		return
	}
	if hit {
		sessionCacheHits.WithLabelValues(kind).Inc()
	} else {
		sessionCacheMisses.WithLabelValues(kind).Inc()
	}
}

// RecordFastCacheError counts a fast cache failure that was absorbed.
func RecordFastCacheError(op string) {
	if fastCacheErrors == nil {
		return
	}
	fastCacheErrors.WithLabelValues(op).Inc()
}

// SetBreakerState reports a circuit breaker state transition.
func SetBreakerState(name string, state int) {
	if breakerState == nil {
		return
	}
	breakerState.WithLabelValues(name).Set(float64(state))
}

// SetConversationLocks reports the size of the conversation lock registry.
func SetConversationLocks(n int) {
	if conversationLocks == nil {
		return
	}
	conversationLocks.Set(float64(n))
}

// SetServiceHealth records whether a component passed its last health check.
func SetServiceHealth(component string, healthy bool) {
	if serviceHealth == nil {
		return
	}
	v := 0.0
	if healthy {
		v = 1
	}
	serviceHealth.WithLabelValues(component).Set(v)
}

// RecordHTTPError counts an error response emitted by a route handler.
func RecordHTTPError(method, handler string, status int, errorType string) {
	if httpErrorsTotal == nil {
		return
	}
	httpErrorsTotal.WithLabelValues(method, handler, strconv.Itoa(status), errorType).Inc()
}

// MetricsMiddleware records HTTP request metrics for Prometheus.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if httpRequestsTotal == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		duration := time.Since(start)

		httpRequestsTotal.WithLabelValues(c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method).Observe(duration.Seconds())
	}
}
