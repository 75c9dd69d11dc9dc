// Package http exposes the scheduler's read-only status surface over
// HTTP: feature listings, per-feature status, a live SSE event stream
// fed from the bus, and Prometheus metrics.
//
// Everything here is read-only by design; mutations go through the
// CLI or the MCP server. Dashboards poll /api/v1 or hang on the event
// stream.
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
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/bruj0/spec-kitty-sub000/internal/engine"
	"github.com/bruj0/spec-kitty-sub000/pkg/auth"
	"github.com/bruj0/spec-kitty-sub000/pkg/feature"
	"github.com/bruj0/spec-kitty-sub000/pkg/workunit"
)

// StatusSource is the engine surface the server reads from.
type StatusSource interface {
	Features() ([]feature.Feature, error)
	Status(ctx context.Context, featureSlug string) (*engine.FeatureStatus, error)
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int

	// APIKeys guard the /api/v1 surface. Empty trusts the transport.
	APIKeys []string

	// RateLimit caps requests per second per client IP. Zero disables.
	RateLimit float64
}

// Server serves the status API.
type Server struct {
	echo    *echo.Echo
	source  StatusSource
	streams *EventStreamer
	logger  *zap.Logger
	config  Config
}

// NewServer assembles the server. streams may be nil when the event
// bus is disabled; the events endpoint then reports 503.
func NewServer(source StatusSource, streams *EventStreamer, logger *zap.Logger, cfg Config) (*Server, error) {
	if source == nil {
		return nil, errors.New("status source is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 9270
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(requestLogger(logger))
	if cfg.RateLimit > 0 {
		e.Use(middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
			Store: middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
				Rate:  rate.Limit(cfg.RateLimit),
				Burst: int(cfg.RateLimit) + 1,
			}),
		}))
	}

	s := &Server{
		echo:    e,
		source:  source,
		streams: streams,
		logger:  logger,
		config:  cfg,
	}
	s.registerRoutes()
	return s, nil
}

// requestLogger logs one structured line per request.
func requestLogger(logger *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return err
		}
	}
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1", auth.APIKeyMiddleware(s.config.APIKeys), NewHTTPMetrics(s.logger).Middleware())
	v1.GET("/features", s.handleFeatures)
	v1.GET("/features/:feature/status", s.handleStatus)
	v1.GET("/events/:feature", s.handleEvents)
}

// Echo exposes the underlying router for tests.
func (s *Server) Echo() *echo.Echo { return s.echo }

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleFeatures(c echo.Context) error {
	features, err := s.source.Features()
	if err != nil {
		s.logger.Error("listing features failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "listing features failed")
	}

	resp := FeaturesResponse{Features: []FeatureSummary{}}
	for _, f := range features {
		resp.Features = append(resp.Features, FeatureSummary{
			Slug:   f.Slug,
			Target: f.TargetBranch,
		})
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleStatus(c echo.Context) error {
	slug := c.Param("feature")
	status, err := s.source.Status(c.Request().Context(), slug)
	if err != nil {
		var notFound *feature.NotFoundError
		if errors.As(err, &notFound) {
			return echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("unknown feature %q", slug))
		}
		var unitMissing *workunit.NotFoundError
		if errors.As(err, &unitMissing) {
			return echo.NewHTTPError(http.StatusNotFound, unitMissing.Error())
		}
		s.logger.Error("status failed", zap.String("feature", slug), zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "status failed")
	}
	return c.JSON(http.StatusOK, status)
}

func (s *Server) handleEvents(c echo.Context) error {
	if s.streams == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "event bus is disabled")
	}
	return s.streams.Stream(c, c.Param("feature"))
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
