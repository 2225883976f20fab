// Package server provides the HTTP server and routing for the frontier API.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/aristath/frontier/internal/di"
	backtesthandlers "github.com/aristath/frontier/internal/modules/backtest/handlers"
	chartshandlers "github.com/aristath/frontier/internal/modules/charts/handlers"
	optimizationhandlers "github.com/aristath/frontier/internal/modules/optimization/handlers"
	priceshandlers "github.com/aristath/frontier/internal/modules/prices/handlers"
	runshandlers "github.com/aristath/frontier/internal/modules/runs/handlers"
	simulationhandlers "github.com/aristath/frontier/internal/modules/simulation/handlers"
)

// Version is reported by /health; overridden at build time with -ldflags.
var Version = "dev"

// Config holds server configuration
type Config struct {
	Log       zerolog.Logger
	Port      int
	DevMode   bool
	DataDir   string
	Container *di.Container    // DI container with all services
	Jobs      *di.JobInstances // Optional, enables manual job triggers
}

// Server represents the HTTP server
type Server struct {
	router         *chi.Mux
	server         *http.Server
	log            zerolog.Logger
	port           int
	container      *di.Container
	systemHandlers *SystemHandlers
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	c := cfg.Container

	systemHandlers := NewSystemHandlers(
		cfg.Log,
		cfg.DataDir,
		c.PriceSourceName,
		c.PriceService,
		c.PricesDB,
		c.RunsDB,
	)
	if cfg.Jobs != nil && cfg.Jobs.Scheduler != nil {
		systemHandlers.SetJobs(cfg.Jobs.Scheduler)
	}
	if c.BackupService != nil {
		systemHandlers.SetBackups(c.BackupService)
	}

	s := &Server{
		router:         chi.NewRouter(),
		log:            cfg.Log.With().Str("component", "server").Logger(),
		port:           cfg.Port,
		container:      c,
		systemHandlers: systemHandlers,
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second, // simulations and frontiers can be slow
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	// Recovery from panics
	s.router.Use(middleware.Recoverer)

	// Request ID
	s.router.Use(middleware.RequestID)

	// Real IP
	s.router.Use(middleware.RealIP)

	// Logging
	s.router.Use(s.loggingMiddleware)

	// Timeout
	s.router.Use(middleware.Timeout(110 * time.Second))

	// CORS
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Compress responses
	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	c := s.container

	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Route("/system", func(r chi.Router) {
			r.Get("/status", s.systemHandlers.HandleSystemStatus)
			r.Get("/database/stats", s.systemHandlers.HandleDatabaseStats)
			r.Get("/disk", s.systemHandlers.HandleDiskUsage)
			r.Get("/jobs", s.systemHandlers.HandleJobsStatus)
			r.Post("/jobs/{name}", s.systemHandlers.HandleTriggerJob)
			r.Get("/backups", s.systemHandlers.HandleListBackups)
		})

		optimizationhandlers.NewHandler(
			c.PriceService,
			c.RiskBuilder,
			c.Optimizer,
			c.RunRepo,
			optimizationhandlers.Defaults{RiskFreeRate: c.RiskFreeRate, FrontierPoints: c.FrontierPoints},
			s.log,
		).RegisterRoutes(r)

		backtesthandlers.NewHandler(
			c.PriceService,
			c.Backtester,
			c.Optimizer,
			c.RunRepo,
			c.BacktestParams,
			s.log,
		).RegisterRoutes(r)

		simulationhandlers.NewHandler(
			c.PriceService,
			c.Simulator,
			c.RiskBuilder,
			c.Optimizer,
			c.RunRepo,
			simulationhandlers.Defaults{Options: c.SimulationOptions, RiskFreeRate: c.RiskFreeRate},
			s.log,
		).RegisterRoutes(r)

		chartshandlers.NewHandler(c.ChartsService, c.FrontierPoints, s.log).RegisterRoutes(r)
		runshandlers.NewHandler(c.RunRepo, s.log).RegisterRoutes(r)
		priceshandlers.NewHandler(c.PriceService, s.log).RegisterRoutes(r)
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Int("port", s.port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
