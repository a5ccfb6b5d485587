// Package api exposes a read-only HTTP status/management surface over a
// running haspkeyd daemon: which tokens are attached, their handshake
// state, and their recent audit events.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hasp-go/haspkeyd/internal/audit"
)

// TokenStatus summarizes one live session for the status endpoint.
type TokenStatus struct {
	Serial      string `json:"serial"`
	Name        string `json:"name"`
	Fingerprint string `json:"fingerprint"`
	IsInitDone  bool   `json:"isInitDone"`
	IsKeyOpened bool   `json:"isKeyOpened"`
}

// Registry is the read view the API needs onto the daemon's live sessions.
// The dispatch loop owns the live TokenState; Snapshot is called from
// the HTTP handler goroutine, never concurrently with dispatch itself,
// since the daemon serializes access through a single mutex around this
// call (spec.md §5 scopes concurrency-freedom to TokenState, not to the
// registry around it).
type Registry interface {
	Snapshot() []TokenStatus
}

// Server is the gin-based HTTP API.
type Server struct {
	engine *gin.Engine
	reg    Registry
	audit  *audit.Log
}

// New builds a Server backed by reg (live session status) and log (event
// history); log may be nil if auditing is disabled.
func New(reg Registry, log *audit.Log) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{engine: engine, reg: reg, audit: log}

	v1 := engine.Group("/api/v1")
	v1.GET("/health", s.handleHealth)
	v1.GET("/tokens", s.handleTokens)
	v1.GET("/tokens/:serial/events", s.handleEvents)

	return s
}

// Run starts the HTTP server on addr, blocking until ctx is canceled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.engine}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleTokens(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tokens": s.reg.Snapshot()})
}

func (s *Server) handleEvents(c *gin.Context) {
	if s.audit == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit log disabled"})
		return
	}

	events, err := s.audit.Recent(c.Request.Context(), c.Param("serial"), 100)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}
