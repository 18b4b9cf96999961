// Package server provides the HTTP server and routing for GreenFin.
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

	"github.com/aristath/greenfin/internal/config"
	"github.com/aristath/greenfin/internal/database"
	optimizationhandlers "github.com/aristath/greenfin/internal/modules/optimization/handlers"
	"github.com/aristath/greenfin/internal/modules/pipeline"
	portfoliohandlers "github.com/aristath/greenfin/internal/modules/portfolio/handlers"
	"github.com/aristath/greenfin/internal/modules/runs"
	"github.com/aristath/greenfin/internal/modules/scoring"
	scoringhandlers "github.com/aristath/greenfin/internal/modules/scoring/handlers"
	"github.com/aristath/greenfin/internal/scheduler"
)

// requestTimeout bounds every request, including on-demand pipeline runs
const requestTimeout = 120 * time.Second

// Config holds server configuration
type Config struct {
	Log         zerolog.Logger
	Config      *config.Config
	StagingDB   *database.DB
	AnalyticsDB *database.DB
	Runs        *runs.Repository
	Pipeline    *pipeline.Service
	Calculator  *scoring.Calculator  // Defaults to the standard weights
	Scheduler   *scheduler.Scheduler // Optional
	DevMode     bool
}

// Server represents the HTTP server
type Server struct {
	router         *chi.Mux
	server         *http.Server
	log            zerolog.Logger
	cfg            *config.Config
	analyticsDB    *database.DB
	stagingDB      *database.DB
	runs           *runs.Repository
	pipeline       *pipeline.Service
	calculator     *scoring.Calculator
	systemHandlers *SystemHandlers
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router:      chi.NewRouter(),
		log:         cfg.Log.With().Str("component", "server").Logger(),
		cfg:         cfg.Config,
		analyticsDB: cfg.AnalyticsDB,
		stagingDB:   cfg.StagingDB,
		runs:        cfg.Runs,
		pipeline:    cfg.Pipeline,
		calculator:  cfg.Calculator,
		systemHandlers: NewSystemHandlers(
			cfg.Log,
			cfg.Config.DataDir,
			cfg.Runs,
			cfg.Scheduler,
			cfg.StagingDB,
			cfg.AnalyticsDB,
		),
	}

	if s.calculator == nil {
		s.calculator = scoring.NewDefaultCalculator()
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      requestTimeout + 10*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	return s
}

// Handler returns the configured router
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
	s.router.Use(middleware.Timeout(requestTimeout))

	// CORS
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Compress responses
	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Route("/system", func(r chi.Router) {
			r.Get("/status", s.systemHandlers.HandleSystemStatus)
			r.Get("/database", s.systemHandlers.HandleDatabaseStats)
			r.Get("/jobs", s.systemHandlers.HandleJobsStatus)
		})

		portfoliohandlers.NewHandler(s.runs, s.log).RegisterRoutes(r)
		optimizationhandlers.NewHandler(s.runs, s.pipeline, s.log).RegisterRoutes(r)
		scoringhandlers.NewHandlers(s.calculator, s.log).RegisterRoutes(r)
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Int("port", s.cfg.Port).Msg("Starting HTTP server")
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
