// Package admin mounts operator endpoints for the query caches.
package admin

import (
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/chirino/movie-service/internal/convlock"
	"github.com/chirino/movie-service/internal/monitoring"
	"github.com/chirino/movie-service/internal/querycache"
	"github.com/gin-gonic/gin"
)

// QueryCache is the operator view of a query cache.
type QueryCache interface {
	Name() string
	Clear() int
	Stats() querycache.Stats
}

// MountRoutes mounts admin API routes.
func MountRoutes(r *gin.Engine, locks *convlock.Registry, caches ...QueryCache) {
	g := r.Group("/v1/admin", monitoring.AdminAuditMiddleware())

	g.POST("/cache/clear", func(c *gin.Context) {
		cleared := make(map[string]int, len(caches))
		total := 0
		for _, qc := range caches {
			n := qc.Clear()
			cleared[qc.Name()] = n
			total += n
		}
		log.Info("Query caches cleared", "entries", total)
		c.JSON(http.StatusOK, gin.H{
			"message":         "Query caches cleared",
			"cleared_entries": total,
			"caches":          cleared,
		})
	})

	g.GET("/cache/stats", func(c *gin.Context) {
		stats := make([]querycache.Stats, 0, len(caches))
		for _, qc := range caches {
			stats = append(stats, qc.Stats())
		}
		resp := gin.H{"caches": stats}
		if locks != nil {
			resp["conversation_locks"] = locks.Len()
		}
		c.JSON(http.StatusOK, resp)
	})
}
