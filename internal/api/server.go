// Package api serves the PlateWatch HTTP API: manual trigger, event search,
// source health and metrics.
package api

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	echolog "github.com/labstack/gommon/log"

	"github.com/platewatch/platewatch/internal/conf"
	"github.com/platewatch/platewatch/internal/datastore"
	"github.com/platewatch/platewatch/internal/errors"
	"github.com/platewatch/platewatch/internal/logger"
	"github.com/platewatch/platewatch/internal/pipeline"
)

// Server timeouts
const (
	ReadTimeout     = 15 * time.Second
	WriteTimeout    = 30 * time.Second
	ShutdownTimeout = 10 * time.Second
	bodyLimit       = "64K"
)

// Store is the datastore surface the API reads
type Store interface {
	Ping(ctx context.Context) error
	IsRegistered(ctx context.Context, plate string) (bool, error)
	QueryEvents(ctx context.Context, q datastore.EventQuery) ([]datastore.RecognitionEvent, error)
}

// Trigger performs a manual actuator trigger
type Trigger interface {
	Trigger(ctx context.Context, plate string) (bool, error)
}

// HealthReporter exposes per-source health
type HealthReporter interface {
	Health() []pipeline.SourceHealth
}

// Server wraps the echo instance and its dependencies.
type Server struct {
	echo      *echo.Echo
	settings  *conf.Settings
	store     Store
	trigger   Trigger
	health    HealthReporter
	metrics   http.Handler
	version   string
	startTime time.Time
	log       logger.Logger
}

// ServerOption configures a Server
type ServerOption func(*Server)

// WithHealthReporter exposes source health at /api/v1/sources/health.
func WithHealthReporter(h HealthReporter) ServerOption {
	return func(s *Server) {
		s.health = h
	}
}

// WithMetricsHandler serves h at /metrics.
func WithMetricsHandler(h http.Handler) ServerOption {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithVersion is reported by the health endpoint.
func WithVersion(v string) ServerOption {
	return func(s *Server) {
		s.version = v
	}
}

// GetLogger returns the api module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("api")
}

// New builds the server and registers every route.
func New(settings *conf.Settings, store Store, trigger Trigger, opts ...ServerOption) (*Server, error) {
	if store == nil || trigger == nil {
		return nil, errors.Newf("api server requires a store and a trigger service").
			Component("api").
			Category(errors.CategoryConfiguration).
			Build()
	}

	s := &Server{
		settings:  settings,
		store:     store,
		trigger:   trigger,
		startTime: time.Now(),
		log:       GetLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.echo = echo.New()
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Logger = newEchoLogger(s.log.Module("echo"))
	if !settings.Debug {
		s.echo.Logger.SetLevel(echolog.WARN)
	}
	s.echo.Server.ReadTimeout = ReadTimeout
	s.echo.Server.WriteTimeout = WriteTimeout

	s.echo.Use(echomw.Recover())
	s.echo.Use(s.requestLogger())
	s.echo.Use(echomw.BodyLimit(bodyLimit))

	s.routes()
	return s, nil
}

func (s *Server) routes() {
	v1 := s.echo.Group("/api/v1")
	v1.GET("/health", s.getHealth)

	protected := v1.Group("", s.basicAuth())
	protected.POST("/trigger", s.postTrigger, s.triggerRateLimiter())
	protected.GET("/events", s.getEvents)
	protected.GET("/sources/health", s.getSourcesHealth)
	protected.GET("/vehicles/:plate/registered", s.getVehicleRegistered)

	if s.metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.metrics), s.basicAuth())
	}
}

// Handler returns the root handler, used by tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Address is the listen address derived from settings
func (s *Server) Address() string {
	return net.JoinHostPort("", s.settings.WebServer.Port)
}

// Start serves in the background until Shutdown is called.
func (s *Server) Start() {
	go func() {
		s.log.Info("HTTP server starting", logger.String("address", s.Address()))
		if err := s.echo.Start(s.Address()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("HTTP server error", logger.Error(err))
		}
	}()
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := s.echo.Shutdown(ctx); err != nil {
		return errors.New(err).
			Component("api").
			Category(errors.CategoryHTTP).
			Build()
	}
	s.log.Info("HTTP server stopped")
	return nil
}
