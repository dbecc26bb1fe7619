package signal

import (
	"net/http"
	"time"

	"detectmesh/internal/core/ports"
	"detectmesh/internal/infrastructure/monitoring"

	"github.com/gin-gonic/gin"
)

// HTTPHandlers exposes the broker's auxiliary HTTP endpoints:
// a liveness/readiness probe, a model-status probe, and an on-demand
// model-initialization endpoint. These sit alongside the WebSocket upgrade
// route on the same gin.Engine (see cmd/signal/main.go).
type HTTPHandlers struct {
	health   *monitoring.HealthChecker
	detector ports.DetectorLoader
}

func NewHTTPHandlers(health *monitoring.HealthChecker, detector ports.DetectorLoader) *HTTPHandlers {
	return &HTTPHandlers{health: health, detector: detector}
}

// Register attaches routes to router under the given group (use router
// itself, or router.Group("/"), for a flat layout). Probe endpoints stay
// public; guards apply only to the mutating initialize-model route, so a
// token-gated deployment can still be health-checked by its load balancer.
func (h *HTTPHandlers) Register(router gin.IRouter, guards ...gin.HandlerFunc) {
	router.GET("/health", h.Health)
	router.GET("/model-status", h.ModelStatus)
	router.POST("/initialize-model", append(guards, h.InitializeModel)...)
}

func (h *HTTPHandlers) Health(c *gin.Context) {
	status := h.health.CheckAll(c.Request.Context())
	code := http.StatusOK
	if status.Status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, status)
}

func (h *HTTPHandlers) ModelStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"loaded":    h.detector.Loaded(),
		"timestamp": time.Now().Unix(),
	})
}

// InitializeModel loads the detector on demand, mirroring the
// initialize-server-model control message for callers that prefer a plain HTTP
// request over the WebSocket control channel. Idempotent: a model already
// loaded returns success immediately with a zero load time.
func (h *HTTPHandlers) InitializeModel(c *gin.Context) {
	d, err := h.detector.Load(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "loadTimeMs": d.Milliseconds()})
}
