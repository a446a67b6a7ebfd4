// Package server exposes the engine over an HTTP API.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/atlasgraph/atlas"
	"github.com/atlasgraph/atlas/pkg/config"
	"github.com/atlasgraph/atlas/pkg/server/handlers"
	"github.com/atlasgraph/atlas/pkg/types"
)

// Server represents the HTTP server.
type Server struct {
	config *config.Config
	router *gin.Engine
	engine atlas.Atlas
	server *http.Server
}

// New creates a new server instance.
func New(cfg *config.Config, engine atlas.Atlas) *Server {
	return &Server{
		config: cfg,
		engine: engine,
	}
}

// Setup sets up the server routes and middleware.
func (s *Server) Setup() {
	gin.SetMode(s.config.Server.Mode)

	s.router = gin.New()
	s.router.Use(gin.Logger())
	s.router.Use(gin.Recovery())
	s.router.Use(corsMiddleware())
	s.router.Use(contextMiddleware())

	s.setupRoutes()

	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}
}

// setupRoutes sets up all the routes.
func (s *Server) setupRoutes() {
	healthHandler := handlers.NewHealthHandler(s.engine)
	ingestHandler := handlers.NewIngestHandler(s.engine)
	searchHandler := handlers.NewSearchHandler(s.engine, s.engine)

	// Health endpoints
	s.router.GET("/health", healthHandler.HealthCheck)
	s.router.GET("/ready", healthHandler.ReadinessCheck)
	s.router.GET("/live", healthHandler.LivenessCheck)
	s.router.GET("/health/build", healthHandler.BuildInfo)

	// API v1 routes
	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/ingest", ingestHandler.Ingest)
		v1.POST("/ingest/batch", ingestHandler.IngestBatch)

		v1.POST("/search", searchHandler.Search)
		v1.GET("/explain/:query_id/:entity_id", searchHandler.Explain)
		v1.GET("/entity/:uuid", searchHandler.GetEntity)
		v1.GET("/stats", searchHandler.Stats)
	}
}

// Start starts the server.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Stop stops the server gracefully.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Router returns the underlying gin router, for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// corsMiddleware adds CORS headers.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Header("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// contextMiddleware attaches request identity to the request context so
// downstream logging and telemetry can correlate records.
func contextMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		ctx = context.WithValue(ctx, types.ContextKeyRequestID, requestID)
		ctx = context.WithValue(ctx, types.ContextKeyRequestSource, "server")

		c.Header("X-Request-ID", requestID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
