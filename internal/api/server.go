// Package api is the HTTP adapter: it binds list query parameters to
// request filters and renders responses and classified errors as JSON.
package api

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/rs/zerolog/log"

	"github.com/fluxbase-eu/restcore/internal/config"
	"github.com/fluxbase-eu/restcore/internal/middleware"
	"github.com/fluxbase-eu/restcore/internal/observability"
)

// HealthChecker reports whether a backing store is reachable.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Server represents the HTTP server
type Server struct {
	app     *fiber.App
	config  *config.Config
	metrics *observability.Metrics
	tracer  *observability.Tracer
	health  HealthChecker
	started time.Time
}

// NewServer creates a new HTTP server. metrics, tracer and health may be
// nil.
func NewServer(cfg *config.Config, metrics *observability.Metrics, tracer *observability.Tracer, health HealthChecker) *Server {
	app := fiber.New(fiber.Config{
		ServerHeader:          "restcore",
		AppName:               "restcore",
		BodyLimit:             cfg.Server.BodyLimit,
		ReadTimeout:           cfg.Server.ReadTimeout,
		WriteTimeout:          cfg.Server.WriteTimeout,
		IdleTimeout:           cfg.Server.IdleTimeout,
		DisableStartupMessage: !cfg.Debug,
		ErrorHandler:          customErrorHandler,
	})

	s := &Server{
		app:     app,
		config:  cfg,
		metrics: metrics,
		tracer:  tracer,
		health:  health,
		started: time.Now(),
	}

	s.setupMiddlewares()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddlewares() {
	// Request ID middleware - must be first for tracing
	s.app.Use(requestid.New())

	if s.tracer != nil && s.tracer.IsEnabled() {
		log.Debug().Msg("Adding OpenTelemetry tracing middleware")
		s.app.Use(middleware.Tracing(middleware.DefaultTracingConfig()))
	}

	if s.metrics != nil {
		s.app.Use(s.metrics.MetricsMiddleware())
	}

	s.app.Use(middleware.StructuredLogger())

	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: s.config.Debug,
	}))

	s.app.Use(compress.New(compress.Config{
		Level: compress.LevelDefault,
	}))
}

func (s *Server) setupRoutes() {
	s.app.Get("/health", s.handleHealth)

	if s.metrics != nil && s.config.Metrics.Enabled {
		s.app.Get(s.config.Metrics.Path, func(c *fiber.Ctx) error {
			s.metrics.UpdateUptime(s.started)
			return s.metrics.Handler()(c)
		})
	}
}

// Mount registers routes under prefix, e.g. Mount("/users", handler).
func (s *Server) Mount(prefix string, routes Routes) {
	routes.Register(s.app.Group(prefix))
	log.Debug().Str("prefix", prefix).Msg("Mounted entity routes")
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	healthy := true
	if s.health != nil {
		if err := s.health.Health(ctx); err != nil {
			healthy = false
			log.Error().Err(err).Msg("Database health check failed")
		}
	}

	status := "ok"
	httpStatus := fiber.StatusOK
	if !healthy {
		status = "degraded"
		httpStatus = fiber.StatusServiceUnavailable
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":    status,
		"database":  healthy,
		"timestamp": time.Now().UTC(),
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	return s.app.Listen(s.config.Server.Address)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Shutting down HTTP server")
	return s.app.ShutdownWithContext(ctx)
}

// App returns the underlying Fiber app instance for testing
func (s *Server) App() *fiber.App {
	return s.app
}
