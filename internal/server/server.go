// Package server is the HTTP edge: upload endpoint, WebSocket route, video
// file serving, health and metrics.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/azazel75/clapshot/internal/apperrors"
	"github.com/azazel75/clapshot/internal/config"
	"github.com/azazel75/clapshot/internal/pipeline/metadata"
	"github.com/azazel75/clapshot/internal/sessions"
)

// Server wires the HTTP routes to the registry and the ingest pipeline.
type Server struct {
	echo      *echo.Echo
	config    *config.Config
	registry  *sessions.Registry
	ingestQ   chan<- metadata.IncomingFile
	startTime time.Time
}

// NewServer builds the server. wsHandler serves GET /api/ws; uploads are
// staged to disk and handed to ingestQ.
func NewServer(cfg *config.Config, registry *sessions.Registry, wsHandler echo.HandlerFunc, ingestQ chan<- metadata.IncomingFile) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	srv := &Server{
		echo:      e,
		config:    cfg,
		registry:  registry,
		ingestQ:   ingestQ,
		startTime: time.Now(),
	}
	srv.registerRoutes(wsHandler)
	return srv
}

func (s *Server) registerRoutes(wsHandler echo.HandlerFunc) {
	s.echo.Use(s.setupRequestLoggerMiddleware())
	s.echo.Use(middleware.Recover())
	s.echo.Use(apperrors.Middleware())

	s.echo.GET("/api/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	s.echo.GET("/api/ws", wsHandler)
	s.echo.POST("/api/upload", s.handleUpload,
		newRateLimiter(s.config.UploadRatePerSec, s.config.UploadBurst),
		middleware.BodyLimit(fmt.Sprintf("%dM", s.config.MaxUploadMB)))

	// Video file serving is for development; put nginx in front in production.
	s.echo.Static("/video", s.config.VideosDir())
}

// Start blocks serving HTTP until Shutdown.
func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port, "url_base", s.config.URLBase)
	if err := s.echo.Start(":" + s.config.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown stops accepting connections and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

func (s *Server) setupRequestLoggerMiddleware() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
			}
			if v.Error != nil {
				attrs = append(attrs, "error", v.Error)
			}
			slog.Info("Request", attrs...)
			return nil
		},
	})
}

func (s *Server) handleHealth(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	if err := s.registry.DB().Ping(ctx); err != nil {
		return apperrors.InternalError("database unreachable", err)
	}

	return c.JSON(200, map[string]any{
		"status": "ok",
		"uptime": time.Since(s.startTime).Seconds(),
	})
}
