package serve

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	corsAllowHeaders = "Content-Type, Mcp-Session-Id, X-Admin-Reason, X-Request-Id"
	corsAllowMethods = "GET, POST, DELETE, OPTIONS"
	corsMaxAge       = "600"
)

// originPolicy is the parsed --cors-origins list. An empty list allows any origin.
type originPolicy struct {
	any     bool
	allowed map[string]struct{}
}

func parseOrigins(raw string) originPolicy {
	p := originPolicy{allowed: map[string]struct{}{}}
	for _, part := range strings.Split(raw, ",") {
		switch v := strings.TrimSpace(part); v {
		case "":
		case "*":
			p.any = true
		default:
			p.allowed[v] = struct{}{}
		}
	}
	if len(p.allowed) == 0 {
		p.any = true
	}
	return p
}

func (p originPolicy) allows(origin string) bool {
	if origin == "" {
		return false
	}
	if p.any {
		return true
	}
	_, ok := p.allowed[origin]
	return ok
}

func corsMiddleware(originsCSV string) gin.HandlerFunc {
	policy := parseOrigins(originsCSV)
	return func(c *gin.Context) {
		origin := strings.TrimSpace(c.GetHeader("Origin"))
		allowed := policy.allows(origin)
		if allowed {
			h := c.Writer.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Add("Vary", "Origin")
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Expose-Headers", "Mcp-Session-Id, X-Request-Id")
		}
		if c.Request.Method != http.MethodOptions || c.GetHeader("Access-Control-Request-Method") == "" {
			c.Next()
			return
		}
		// Preflight.
		if !allowed {
			c.AbortWithStatus(http.StatusForbidden)
			return
		}
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
		h.Set("Access-Control-Allow-Methods", corsAllowMethods)
		h.Set("Access-Control-Max-Age", corsMaxAge)
		c.AbortWithStatus(http.StatusNoContent)
	}
}
