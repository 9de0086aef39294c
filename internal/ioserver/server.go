// Package ioserver exposes the sync trigger and status REST API.
// This is an impure I/O package built on gin.
package ioserver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ecodata/aqsync/pkg/aqsync"
	"github.com/ecodata/aqsync/pkg/config"
	"github.com/ecodata/aqsync/pkg/db"
)

// Server bundles router and dependencies for the REST API.
type Server struct {
	cfg      *config.ServerConfig
	orch     aqsync.Orchestrator
	ledger   aqsync.Ledger
	operator db.Operator
	log      *slog.Logger
	engine   *gin.Engine
}

// New constructs a server with routes and middleware.
func New(
	cfg *config.ServerConfig,
	orch aqsync.Orchestrator,
	ledger aqsync.Ledger,
	operator db.Operator,
	log *slog.Logger,
) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	server := &Server{
		cfg:      cfg,
		orch:     orch,
		ledger:   ledger,
		operator: operator,
		log:      log,
		engine:   engine,
	}
	server.registerRoutes()
	return server
}

// Engine exposes the underlying gin engine (for tests).
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Run starts the HTTP server and blocks until ctx is cancelled or the
// listener fails.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.cfg.Addr(),
		Handler: s.engine,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			time.Duration(s.cfg.ShutdownTimeoutSec)*time.Second,
		)
		defer cancel()
		s.log.Info("http server shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) registerRoutes() {
	s.engine.GET("/healthz", s.handleHealth)
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := s.engine.Group("/api/v1")
	v1.POST("/sync", s.handleTriggerSync)
	v1.GET("/sync", s.handleListOperations)
	v1.GET("/sync/running", s.handleRunningOperations)
	v1.GET("/sync/:id", s.handleGetOperation)
	v1.POST("/sync/:id/cancel", s.handleCancelOperation)
}

func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	pool := s.operator.Pool()
	if pool == nil || pool.Ping(ctx) != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
