package handlers

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/atlasgraph/atlas"
)

// Build information, set at build time using ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

// HealthHandler handles health check requests.
type HealthHandler struct {
	engine atlas.GraphReader
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(engine atlas.GraphReader) *HealthHandler {
	return &HealthHandler{engine: engine}
}

// HealthCheck handles GET /health, a basic liveness check.
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"service":   "atlas",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   Version,
	})
}

// ReadinessCheck handles GET /ready, verifying the graph backend
// answers within a short deadline.
func (h *HealthHandler) ReadinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	response := gin.H{
		"status":    "ready",
		"service":   "atlas",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks":    gin.H{},
	}
	checks := response["checks"].(gin.H)

	ready := true
	if h.engine != nil {
		start := time.Now()
		stats, err := h.engine.Stats(ctx)
		took := time.Since(start)
		if err != nil {
			checks["graph"] = gin.H{
				"status":   "unhealthy",
				"error":    err.Error(),
				"duration": took.String(),
			}
			ready = false
		} else {
			checks["graph"] = gin.H{
				"status":   "healthy",
				"nodes":    stats.NodeCount,
				"edges":    stats.EdgeCount,
				"duration": took.String(),
			}
		}
	} else {
		checks["graph"] = gin.H{
			"status": "unhealthy",
			"error":  "engine not initialized",
		}
		ready = false
	}

	if !ready {
		response["status"] = "not_ready"
		c.JSON(http.StatusServiceUnavailable, response)
		return
	}
	c.JSON(http.StatusOK, response)
}

// LivenessCheck handles GET /live for Kubernetes liveness probes.
func (h *HealthHandler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "alive",
		"service":   "atlas",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// BuildInfo handles GET /health/build.
func (h *HealthHandler) BuildInfo(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"version":    Version,
		"git_commit": GitCommit,
		"build_time": BuildTime,
		"go_version": GoVersion,
	})
}
