// Package movies mounts the structured and semantic movie search endpoints.
package movies

import (
	"errors"
	"io"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/chirino/movie-service/internal/catalog"
	"github.com/chirino/movie-service/internal/plugin/route/httperr"
	"github.com/chirino/movie-service/internal/semantic"
	"github.com/gin-gonic/gin"
)

// MountRoutes mounts the movie routes. defaultTopK applies to semantic
// searches that omit top_k.
func MountRoutes(r *gin.Engine, engine *catalog.Engine, searcher *semantic.Searcher, defaultTopK int) {
	if defaultTopK <= 0 {
		defaultTopK = semantic.DefaultTopK
	}
	g := r.Group("/v1/movies")

	g.POST("/query", func(c *gin.Context) {
		var params catalog.Params
		if err := c.ShouldBindJSON(&params); err != nil && !errors.Is(err, io.EOF) {
			httperr.BadRequest(c, "movies_query", err)
			return
		}
		if params.Unfiltered() {
			log.Warn("Unfiltered catalog query", "limit", params.Limit, "orderBy", params.OrderBy)
		}
		result, err := engine.Query(c.Request.Context(), params)
		if err != nil {
			httperr.Handle(c, "movies_query", err)
			return
		}
		c.JSON(http.StatusOK, result)
	})

	g.POST("/search", func(c *gin.Context) {
		var req struct {
			QueryText string `json:"query_text"`
			TopK      *int   `json:"top_k"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			httperr.BadRequest(c, "movies_search", err)
			return
		}
		k := defaultTopK
		if req.TopK != nil {
			k = *req.TopK
		}
		result, err := searcher.Search(c.Request.Context(), req.QueryText, k)
		if err != nil {
			httperr.Handle(c, "movies_search", err)
			return
		}
		c.JSON(http.StatusOK, result)
	})
}
