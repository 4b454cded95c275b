package system

import (
	"net/http"
	"sync/atomic"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	registryroute "github.com/chirino/movie-service/internal/registry/route"
	"github.com/chirino/movie-service/internal/service"
)

var (
	ready  atomic.Bool
	health atomic.Pointer[service.HealthChecker]
)

// MarkReady signals that the service has finished initializing and is ready to
// serve traffic. Call this once StartServer has completed successfully.
func MarkReady() {
	ready.Store(true)
}

// SetHealthChecker installs the checker behind /health. Until one is set the
// endpoint only reports that the process is up.
func SetHealthChecker(h *service.HealthChecker) {
	health.Store(h)
}

func init() {
	registryroute.Register(registryroute.Plugin{
		Name: "system",
		Loader: func(r *gin.Engine) error {
			// Component health; degraded components never fail the probe.
			r.GET("/health", func(c *gin.Context) {
				h := health.Load()
				if h == nil {
					c.JSON(http.StatusOK, gin.H{"status": service.StatusHealthy})
					return
				}
				c.JSON(http.StatusOK, h.Check(c.Request.Context()))
			})

			// Readiness: service has finished initializing
			r.GET("/ready", func(c *gin.Context) {
				if ready.Load() {
					c.JSON(http.StatusOK, gin.H{"status": "ready"})
				} else {
					c.JSON(http.StatusServiceUnavailable, gin.H{"status": "starting"})
				}
			})

			// Prometheus metrics
			r.GET("/metrics", gin.WrapH(promhttp.Handler()))

			return nil
		},
	})
}
