// Package http exposes the fixer operations over an HTTP API.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// maxBodySize bounds request bodies; diffs of large projects still fit.
const maxBodySize = "16M"

// Services are the operations the server dispatches to. Any of them may be
// nil, in which case the matching endpoint answers 501.
type Services struct {
	Analyzer Analyzer
	Applier  Applier
	Tester   Tester
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
	// Meter records request metrics. Defaults to the global meter provider.
	Meter metric.Meter
}

// Server provides HTTP endpoints for stylefix.
type Server struct {
	echo     *echo.Echo
	services Services
	locks    *projectLocks
	logger   *zap.Logger
	config   *Config
}

// NewServer creates a new HTTP server.
func NewServer(services Services, logger *zap.Logger, cfg *Config) (*Server, error) {
	if services.Analyzer == nil && services.Applier == nil && services.Tester == nil {
		return nil, errors.New("at least one service is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 9090,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.BodyLimit(maxBodySize))
	e.Use(newHTTPMetrics(cfg.Meter, logger).MetricsMiddleware())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return nil
		}
	})

	s := &Server{
		echo:     e,
		services: services,
		locks:    newProjectLocks(),
		logger:   logger,
		config:   cfg,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/analyze", s.handleAnalyze)
	v1.POST("/apply", s.handleApply)
	v1.POST("/test-config", s.handleTestConfig)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// Addr is the address the server listens on.
func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}

// Start serves until Shutdown is called. It returns nil after a graceful
// shutdown.
func (s *Server) Start() error {
	s.logger.Info("starting http server", zap.String("addr", s.Addr()))
	if err := s.echo.Start(s.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
