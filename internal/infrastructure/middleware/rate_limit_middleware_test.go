package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"detectmesh/pkg/config"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func rateLimitedRouter(cfg *config.Config) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(NewHTTPRateLimitMiddleware(cfg))
	router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	return router
}

func doGet(router *gin.Engine) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/health", nil)
	req.RemoteAddr = "10.0.0.1:52100"
	router.ServeHTTP(w, req)
	return w
}

func TestHTTPRateLimit_DisabledPassesThrough(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.RateLimiting.Enabled = false

	router := rateLimitedRouter(cfg)
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, doGet(router).Code)
	}
}

func TestHTTPRateLimit_BurstExhaustionReturns429(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.RateLimiting.Enabled = true
	cfg.RateLimiting.HTTP.RequestsPerSecond = 1
	cfg.RateLimiting.HTTP.Burst = 2
	cfg.RateLimiting.HTTP.MaxConcurrent = 0

	router := rateLimitedRouter(cfg)

	assert.Equal(t, http.StatusOK, doGet(router).Code)
	assert.Equal(t, http.StatusOK, doGet(router).Code)

	w := doGet(router)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "RATE_LIMIT_EXCEEDED")
}

func TestHTTPRateLimit_SeparateIPsSeparateBuckets(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.RateLimiting.Enabled = true
	cfg.RateLimiting.HTTP.RequestsPerSecond = 1
	cfg.RateLimiting.HTTP.Burst = 1
	cfg.RateLimiting.HTTP.MaxConcurrent = 0

	router := rateLimitedRouter(cfg)

	first := httptest.NewRecorder()
	req1, _ := http.NewRequest(http.MethodGet, "/health", nil)
	req1.RemoteAddr = "10.0.0.1:52100"
	router.ServeHTTP(first, req1)
	assert.Equal(t, http.StatusOK, first.Code)

	// Same bucket exhausted.
	second := httptest.NewRecorder()
	req2, _ := http.NewRequest(http.MethodGet, "/health", nil)
	req2.RemoteAddr = "10.0.0.1:52101"
	router.ServeHTTP(second, req2)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)

	// Different IP, fresh bucket.
	third := httptest.NewRecorder()
	req3, _ := http.NewRequest(http.MethodGet, "/health", nil)
	req3.RemoteAddr = "10.0.0.2:52100"
	router.ServeHTTP(third, req3)
	assert.Equal(t, http.StatusOK, third.Code)
}
