package middleware

import (
	"net/http"

	"detectmesh/pkg/config"

	"github.com/gin-gonic/gin"
)

// CORSMiddleware answers cross-origin requests for the HTTP side channel.
// Origins come from the auth config; "*" allows everything, which covers
// local dev and tunneled frontends. Preflight requests are answered here
// and never reach the handlers.
func CORSMiddleware(cfg *config.Config) gin.HandlerFunc {
	allowed := make(map[string]bool, len(cfg.Auth.AllowedOrigins))
	allowAll := false
	for _, o := range cfg.Auth.AllowedOrigins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = true
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" {
			switch {
			case allowAll:
				c.Header("Access-Control-Allow-Origin", "*")
			case allowed[origin]:
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Vary", "Origin")
			}
			c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
