// Package server owns the HTTP listener: route registration, health
// reporting and graceful shutdown.
package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jay-chalkstep/cadaince-sub001/internal/api"
	"github.com/jay-chalkstep/cadaince-sub001/internal/store"
	"github.com/jay-chalkstep/cadaince-sub001/pkg/jobs"
	"github.com/jay-chalkstep/cadaince-sub001/pkg/logger"
)

// HealthChecker reports whether a backing dependency is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Config holds the HTTP listener settings. Timeouts are duration strings
// so they can come straight from yaml or the environment.
type Config struct {
	Host            string
	Port            int
	ReadTimeout     string
	WriteTimeout    string
	ShutdownTimeout string
}

// Server represents the HTTP server.
type Server struct {
	config          Config
	httpServer      *http.Server
	health          HealthChecker
	logger          *logger.Logger
	shutdownTimeout time.Duration
}

// New creates the HTTP server with all engine routes registered.
func New(config Config, runner *jobs.Runner, st store.Store, health HealthChecker, log *logger.Logger) (*Server, error) {
	readTimeout, err := parseTimeout(config.ReadTimeout, 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid read_timeout: %w", err)
	}
	writeTimeout, err := parseTimeout(config.WriteTimeout, 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid write_timeout: %w", err)
	}
	shutdownTimeout, err := parseTimeout(config.ShutdownTimeout, 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid shutdown_timeout: %w", err)
	}

	server := &Server{
		config:          config,
		health:          health,
		logger:          log,
		shutdownTimeout: shutdownTimeout,
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(logger.RequestLogger(log, "/healthz"))

	router.GET("/healthz", server.healthz)

	v1 := router.Group("/api/v1")
	api.NewSyncController(runner, st).RegisterRoutes(v1)
	api.NewAnomalyController(runner, st).RegisterRoutes(v1)

	server.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:      router,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}

	return server, nil
}

// Start runs the listener until the context is cancelled or an interrupt
// arrives, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("address", s.httpServer.Addr).Info("HTTP server listening")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		s.logger.WithField("signal", sig.String()).Info("Shutting down server")
	case <-ctx.Done():
		s.logger.Info("Context cancelled, shutting down server")
	}

	return s.Shutdown()
}

// Shutdown drains in-flight requests within the configured timeout.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	s.logger.Info("Server shutdown complete")
	return nil
}

func (s *Server) healthz(c *gin.Context) {
	checks := map[string]string{"server": "healthy"}
	status := "healthy"
	code := http.StatusOK

	if s.health != nil {
		if err := s.health.HealthCheck(c.Request.Context()); err != nil {
			checks["database"] = "unhealthy: " + err.Error()
			status = "unhealthy"
			code = http.StatusServiceUnavailable
		} else {
			checks["database"] = "healthy"
		}
	}

	c.JSON(code, gin.H{"status": status, "checks": checks})
}

func parseTimeout(value string, fallback time.Duration) (time.Duration, error) {
	if value == "" {
		return fallback, nil
	}
	return time.ParseDuration(value)
}
