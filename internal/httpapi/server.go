package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/memengine/memengine/internal/engine"
	"github.com/memengine/memengine/internal/logging"
)

// Server is a thin REST wrapper around an *engine.Engine.
type Server struct {
	router     *gin.Engine
	eng        *engine.Engine
	httpServer *http.Server
	log        *logging.Logger
}

// NewServer builds a Server over eng. debug controls Gin's mode.
func NewServer(eng *engine.Engine, debug bool) *Server {
	log := logging.GetLogger("httpapi")

	if !debug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowMethods:    []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders:   []string{"Content-Length"},
		AllowAllOrigins: true,
		MaxAge:          12 * time.Hour,
	}))

	s := &Server{router: router, eng: eng, log: log}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/health", s.health)

		v1.POST("/chats", s.storeChat)
		v1.GET("/memories", s.listMemories)
		v1.GET("/memories/:id", s.getMemory)
		v1.GET("/memories/search", s.searchMemories)
		v1.PATCH("/memories/:id", s.updateMemory)
		v1.DELETE("/memories/:id", s.deleteMemory)
		v1.GET("/memories/:id/state", s.getMemoryState)
		v1.POST("/memories/:id/state", s.transitionMemoryState)

		v1.POST("/memories/:id/relationships", s.storeRelationships)
		v1.GET("/relationships", s.byRelationship)
		v1.GET("/memories/:id/related", s.relatedTo)
		v1.GET("/memories/:id/conflicts", s.resolveConflicts)

		v1.POST("/consolidations", s.consolidate)
		v1.POST("/consolidations/schedule/start", s.startConsolidationSchedule)
		v1.POST("/consolidations/schedule/stop", s.stopConsolidationSchedule)

		v1.GET("/stats", s.stats)
	}
}

func (s *Server) health(c *gin.Context) {
	ok(c, "ok", gin.H{"status": "healthy"})
}

// Router exposes the underlying Gin engine for tests.
func (s *Server) Router() *gin.Engine { return s.router }

// Start runs the HTTP server on addr, blocking until it errors or is
// shut down.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.router}
	s.log.Info("starting http api", "address", addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http api: %w", err)
	}
	return nil
}

// Stop gracefully shuts the HTTP server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
