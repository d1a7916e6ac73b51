// Package main is the entry point for the madfolio portfolio optimization
// service. It wires configuration, the database, the optimization service,
// the background scheduler, and the HTTP server, then waits for a shutdown
// signal.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/madfolio/internal/config"
	"github.com/aristath/madfolio/internal/database"
	"github.com/aristath/madfolio/internal/jobs"
	"github.com/aristath/madfolio/internal/modules/optimization"
	"github.com/aristath/madfolio/internal/modules/returns"
	"github.com/aristath/madfolio/internal/modules/runs"
	"github.com/aristath/madfolio/internal/scheduler"
	"github.com/aristath/madfolio/internal/server"
	"github.com/aristath/madfolio/internal/solver"
	"github.com/aristath/madfolio/pkg/logger"
)

func main() {
	// Load configuration first to get the log level
	cfg, err := config.Load()
	if err != nil {
		// Use a fallback logger so the configuration error is still logged
		fallback := logger.New(logger.Config{Level: "info", Pretty: true})
		fallback.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})

	log.Info().Msg("Starting madfolio")

	// Initialize database and schemas
	db, err := database.New(database.Config{
		Path: cfg.DatabasePath(),
		Name: "madfolio",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		// Fold the WAL back into the main file before closing so the data
		// directory holds a single compact database between runs.
		if err := db.WALCheckpoint("TRUNCATE"); err != nil {
			log.Warn().Err(err).Msg("WAL checkpoint failed")
		}
		if err := db.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close database")
		}
	}()

	if err := returns.InitSchema(db.Conn()); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize returns schema")
	}
	if err := runs.InitSchema(db.Conn()); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize run history schema")
	}

	// Wire the optimization service and repositories
	returnsRepo := returns.NewRepository(db.Conn(), log)
	runsRepo := runs.NewRepository(db.Conn(), log)
	optimizationService := optimization.NewService(solver.NewSimplex(log), cfg.SolverTimeout, log)

	// Initialize scheduler and register background jobs
	sched := scheduler.New(log)
	if err := registerJobs(sched, cfg, optimizationService, returnsRepo, runsRepo, log); err != nil {
		log.Fatal().Err(err).Msg("Failed to register jobs")
	}
	sched.Start()
	defer sched.Stop()

	// Initialize HTTP server
	srv := server.New(server.Config{
		Log:          log,
		DB:           db,
		Config:       cfg,
		Port:         cfg.Port,
		DevMode:      cfg.DevMode,
		Optimization: optimizationService,
		ReturnsRepo:  returnsRepo,
		RunsRepo:     runsRepo,
	})

	// Start server in goroutine
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}

// registerJobs wires the background jobs the configuration asks for.
func registerJobs(
	sched *scheduler.Scheduler,
	cfg *config.Config,
	service *optimization.Service,
	returnsRepo *returns.Repository,
	runsRepo *runs.Repository,
	log zerolog.Logger,
) error {
	if !cfg.ReoptimizeEnabled {
		log.Info().Msg("Scheduled re-optimization disabled")
		return nil
	}

	job := jobs.NewReoptimizeJob(service, returnsRepo, runsRepo, jobs.ReoptimizeParams{
		Leverage:     cfg.DefaultLeverage,
		LowerBound:   cfg.DefaultLowerBound,
		UpperBound:   cfg.DefaultUpperBound,
		Tolerance:    cfg.DefaultTolerance,
		MaxPositions: cfg.ReoptimizeMaxPos,
	}, log)

	return sched.AddJob(cfg.ReoptimizeSchedule, job)
}
