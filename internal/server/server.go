// Package server builds the gin router and runs the HTTP server.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-hclog"

	"github.com/mantonx/trickplay/internal/config"
	"github.com/mantonx/trickplay/internal/middleware"
)

// shutdownTimeout bounds graceful shutdown of in-flight requests
const shutdownTimeout = 5 * time.Second

// RouteRegistrar is a module that exposes HTTP routes
type RouteRegistrar interface {
	ID() string
	Name() string
	RegisterRoutes(router *gin.Engine)
}

// SetupRouter configures the router and registers every module's routes
func SetupRouter(logger hclog.Logger, modules ...RouteRegistrar) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.CORS())
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.ErrorLogger(logger))

	loaded := make([]gin.H, 0, len(modules))
	for _, m := range modules {
		m.RegisterRoutes(r)
		loaded = append(loaded, gin.H{"id": m.ID(), "name": m.Name()})
		logger.Debug("registered module routes", "module", m.ID())
	}

	r.GET(middleware.HealthPath, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"modules": loaded,
		})
	})

	return r
}

// Server is the HTTP server
type Server struct {
	srv    *http.Server
	logger hclog.Logger
}

// New creates a server for handler
func New(cfg config.ServerConfig, handler http.Handler, logger hclog.Logger) *Server {
	return &Server{
		srv: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		logger: logger.Named("server"),
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting trickplay server", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.srv.Shutdown(shutdownCtx)
}
