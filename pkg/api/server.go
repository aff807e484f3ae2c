// Package api exposes a minimal observability surface over the engine: a
// health snapshot and per-run status lookup. It is not the enrichment API
// (that surface is explicitly out of scope per spec §1).
package api

import (
	"context"
	"net/http"

	"github.com/catalogops/enrichment-pipeline/pkg/models"
	"github.com/catalogops/enrichment-pipeline/pkg/queue"
	"github.com/gin-gonic/gin"
)

// PoolHealthProvider is the subset of *queue.Pool the health handler
// depends on.
type PoolHealthProvider interface {
	Health() queue.PoolHealth
}

// RunStore is the subset of the persistence adapter the run-status
// handler depends on.
type RunStore interface {
	RecentPipelineRuns(ctx context.Context, limit int) ([]models.PipelineRun, error)
}

// Server wraps a Gin engine bootstrapped the way the teacher's
// cmd/tarsy/main.go sets up its router: minimal, no middleware beyond
// gin's defaults.
type Server struct {
	engine *gin.Engine
	pool   PoolHealthProvider
	runs   RunStore
}

// NewServer builds a Server and registers its routes.
func NewServer(pool PoolHealthProvider, runs RunStore) *Server {
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{engine: engine, pool: pool, runs: runs}
	engine.GET("/healthz", s.handleHealth)
	engine.GET("/runs/:id", s.handleRunStatus)
	return s
}

// Handler returns the underlying http.Handler for use with http.Server.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, s.pool.Health())
}

func (s *Server) handleRunStatus(c *gin.Context) {
	id := c.Param("id")
	runs, err := s.runs.RecentPipelineRuns(c.Request.Context(), 50)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	for _, run := range runs {
		if run.ID == id {
			c.JSON(http.StatusOK, run)
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "pipeline run not found"})
}
