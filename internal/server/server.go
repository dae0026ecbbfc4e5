package server

import (
	"context"
	"time"

	"triage/internal/config"
	"triage/internal/handlers"
	"triage/internal/jobs"

	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"
)

// Deps are the collaborators behind the routes. Nil fields disable the
// routes that need them; the handlers answer 503 where that is meaningful.
type Deps struct {
	DB *sqlx.DB

	Ingester    handlers.Ingester
	Importer    handlers.BatchIngester
	Generations handlers.GenerationReader

	Analysis        handlers.GenerationRunner
	Reply           handlers.GenerationRunner
	EnqueueAnalysis handlers.EnqueueFunc
	EnqueueReply    handlers.EnqueueFunc

	Fanout     handlers.BatchFanout
	Dispatcher jobs.Dispatcher
	Jobs       handlers.JobLauncher

	Queue     handlers.Pinger
	Analytics handlers.SummaryProvider
}

// Server represents the application server
type Server struct {
	echo   *echo.Echo
	deps   Deps
	config *config.Config
	logger zerolog.Logger
}

// New creates a new server instance
func New(cfg *config.Config, deps Deps, logger zerolog.Logger) *Server {
	return &Server{
		config: cfg,
		deps:   deps,
		logger: logger,
	}
}

// zerologMiddleware creates a zerolog-based logging middleware for Echo
func (s *Server) zerologMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			req := c.Request()
			res := c.Response()

			s.logger.Info().
				Str("method", req.Method).
				Str("uri", req.RequestURI).
				Str("remote_ip", c.RealIP()).
				Int("status", res.Status).
				Int64("latency_ms", time.Since(start).Milliseconds()).
				Str("user_agent", req.UserAgent()).
				Msg("HTTP request")

			return err
		}
	}
}

// Initialize sets up the Echo framework with middleware and routes
func (s *Server) Initialize() {
	s.echo = echo.New()

	// Middleware
	s.echo.Use(s.zerologMiddleware())
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.CORS())
	s.echo.Use(middleware.BodyLimit("10M"))

	// Hide Echo banner
	s.echo.HideBanner = true

	// Setup routes
	s.setupRoutes()
}

// Echo exposes the router, mainly for tests
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// setupRoutes configures all the application routes
func (s *Server) setupRoutes() {
	d := s.deps

	// API group with /api prefix
	api := s.echo.Group("/api")

	// Swagger documentation
	s.echo.GET("/swagger/*", echoSwagger.WrapHandler)

	// Health endpoints (keep at root level for monitoring)
	s.echo.GET("/healthz", handlers.HealthHandler(s.config.Version))
	s.echo.GET("/healthz/db", handlers.DBHealthHandler(d.DB))
	s.echo.GET("/healthz/queue", handlers.QueueHealthHandler(d.Queue))

	api.GET("/", handlers.RootHandler(s.config.Version))

	if d.Ingester != nil {
		api.POST("/emails", handlers.SubmitEmailHandler(d.Ingester, s.logger))
	}
	if d.Analysis != nil {
		api.POST("/emails/:id/analyze", handlers.AnalyzeEmailHandler(d.Analysis, d.EnqueueAnalysis, s.logger))
	}
	if d.Reply != nil {
		api.POST("/threads/:id/reply", handlers.GenerateReplyHandler(d.Reply, d.EnqueueReply, s.logger))
	}
	if d.Fanout != nil {
		api.POST("/fanout", handlers.FanoutHandler(d.Fanout, d.Dispatcher, s.logger))
	}
	if d.Generations != nil {
		api.GET("/generations/:id", handlers.GetGenerationHandler(d.Generations))
		api.GET("/generations/:id/tasks", handlers.GetGenerationTasksHandler(d.Generations))
	}
	if d.Analytics != nil {
		api.GET("/analytics", handlers.AnalyticsHandler(d.Analytics, s.logger))
		api.GET("/analytics/daily-report", handlers.DailyReportHandler(d.Analytics, s.logger))
	}

	admin := api.Group("/admin")
	admin.POST("/fanout-job", handlers.TriggerFanoutJobHandler(d.Jobs, s.logger))
	admin.GET("/fanout-job/:jobName", handlers.FanoutJobStatusHandler(d.Jobs))
	admin.DELETE("/fanout-job/:jobName", handlers.DeleteFanoutJobHandler(d.Jobs, s.logger))
	if d.Importer != nil {
		admin.POST("/import-mail", handlers.ImportMailDirHandler(d.Importer, s.config.EmailImportPath, s.logger))
	}
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info().Str("port", s.config.Port).Msg("Server starting")
	return s.echo.Start(":" + s.config.Port)
}

// Shutdown stops accepting requests and waits for in-flight ones
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
