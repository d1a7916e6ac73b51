// Package server provides the HTTP server and routing for madfolio.
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

	"github.com/aristath/madfolio/internal/config"
	"github.com/aristath/madfolio/internal/database"
	"github.com/aristath/madfolio/internal/modules/optimization"
	optimizationhandlers "github.com/aristath/madfolio/internal/modules/optimization/handlers"
	"github.com/aristath/madfolio/internal/modules/returns"
	returnshandlers "github.com/aristath/madfolio/internal/modules/returns/handlers"
	"github.com/aristath/madfolio/internal/modules/runs"
	runshandlers "github.com/aristath/madfolio/internal/modules/runs/handlers"
)

// Config holds server configuration
type Config struct {
	Log          zerolog.Logger
	DB           *database.DB
	Config       *config.Config
	Port         int
	DevMode      bool
	Optimization *optimization.Service
	ReturnsRepo  *returns.Repository
	RunsRepo     *runs.Repository
}

// Server represents the HTTP server
type Server struct {
	router         *chi.Mux
	server         *http.Server
	log            zerolog.Logger
	db             *database.DB
	cfg            *config.Config
	optimization   *optimization.Service
	returnsRepo    *returns.Repository
	runsRepo       *runs.Repository
	systemHandlers *SystemHandlers
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router:       chi.NewRouter(),
		log:          cfg.Log.With().Str("component", "server").Logger(),
		db:           cfg.DB,
		cfg:          cfg.Config,
		optimization: cfg.Optimization,
		returnsRepo:  cfg.ReturnsRepo,
		runsRepo:     cfg.RunsRepo,
	}

	s.systemHandlers = NewSystemHandlers(cfg.Log, cfg.Config.DataDir, cfg.DB)

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: s.requestTimeout() + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// requestTimeout returns the per-request deadline. It leaves headroom over
// the solver budget so a slow solve surfaces as a typed timeout from the
// service rather than a severed connection.
func (s *Server) requestTimeout() time.Duration {
	timeout := 60 * time.Second
	if s.cfg.SolverTimeout > 0 && s.cfg.SolverTimeout+15*time.Second > timeout {
		timeout = s.cfg.SolverTimeout + 15*time.Second
	}
	return timeout
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
	s.router.Use(middleware.Timeout(s.requestTimeout()))

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
	// Health check
	s.router.Get("/health", s.handleHealth)

	// API routes
	s.router.Route("/api", func(r chi.Router) {
		// System monitoring
		r.Route("/system", func(r chi.Router) {
			r.Get("/", s.systemHandlers.HandleSystemStatus)
			r.Get("/database/stats", s.systemHandlers.HandleDatabaseStats)
			r.Get("/disk", s.systemHandlers.HandleDiskUsage)
		})

		// Returns sets
		returnsHandler := returnshandlers.NewHandler(s.returnsRepo, s.log)
		returnsHandler.RegisterRoutes(r)

		// Run history
		runsHandler := runshandlers.NewHandler(s.runsRepo, s.log)
		runsHandler.RegisterRoutes(r)

		// Optimization
		optimizationHandler := optimizationhandlers.NewHandler(
			s.optimization,
			s.returnsRepo,
			s.runsRepo,
			optimizationhandlers.Defaults{
				Leverage:   s.cfg.DefaultLeverage,
				LowerBound: s.cfg.DefaultLowerBound,
				UpperBound: s.cfg.DefaultUpperBound,
				Tolerance:  s.cfg.DefaultTolerance,
			},
			s.log,
		)
		optimizationHandler.RegisterRoutes(r)
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
