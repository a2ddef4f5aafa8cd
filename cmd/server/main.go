package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rpattn/fileflow/internal/config"
	"github.com/rpattn/fileflow/internal/db"
	"github.com/rpattn/fileflow/internal/ingestion"
	"github.com/rpattn/fileflow/internal/jobs"
	"github.com/rpattn/fileflow/internal/middleware"
	"github.com/rpattn/fileflow/internal/remote"
	"github.com/rpattn/fileflow/internal/repository"
	"github.com/rpattn/fileflow/internal/storage"

	"github.com/phuslu/log"
	"github.com/rs/cors"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := log.Logger{
		Level:      log.InfoLevel,
		TimeFormat: time.RFC3339,
		Writer:     &log.ConsoleWriter{},
	}

	cfg, err := config.Load(".")
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Setup database connection
	conn, err := db.NewConnection(ctx, cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer conn.Close()

	// Run migrations
	if err := db.RunMigrations(ctx, conn.Pool, "./migrations"); err != nil {
		logger.Fatal().Err(err).Msg("failed to run migrations")
	}

	// Repositories and storage
	fileRepo := repository.NewFileRepository(conn.Pool)
	logRepo := repository.NewProcessingLogRepository(conn.Pool)

	store, err := storage.NewDiskStore(cfg.Storage.Root)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize storage")
	}

	// Remote client; the limiter is shared by everything that calls out
	limiter := remote.NewEndpointLimiter(cfg.Remote.RateBudget, cfg.Remote.RateWindow)
	clientCfg := remote.Config{
		Timeout:    cfg.Remote.Timeout,
		Production: cfg.Remote.Production,
	}
	if cfg.Remote.Token != "" {
		clientCfg.Headers = map[string]string{"Authorization": "Bearer " + cfg.Remote.Token}
	}
	client := remote.NewClient(clientCfg, limiter, logger)

	runsAPI := jobs.NewRunsAPI(client, jobs.RunsConfig{
		BaseURL:     cfg.Remote.BaseURL,
		JobID:       cfg.Remote.JobID,
		CallbackURL: cfg.Remote.CallbackURL,
	})

	orchestrator := jobs.NewOrchestrator(fileRepo, logRepo, runsAPI, logger)
	callback := jobs.NewCallbackHandler(fileRepo, logRepo, logger)

	sweeper := jobs.NewSweeper(fileRepo, logRepo, runsAPI, jobs.SweeperConfig{
		Schedule:   cfg.Sweep.Schedule,
		StaleAfter: cfg.Sweep.StaleAfter,
		BatchSize:  cfg.Sweep.BatchSize,
	}, logger)
	if err := sweeper.Start(); err != nil {
		logger.Fatal().Err(err).Msg("failed to start reconciliation sweeper")
	}
	defer sweeper.Stop()

	// HTTP surface
	service := ingestion.NewService(fileRepo, store, logger)
	handler := ingestion.NewHandler(service, fileRepo, logRepo, orchestrator, logger)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
	})

	root := middleware.Logging(logger)(corsHandler.Handler(handler.Routes(callback)))

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      root,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info().Str("addr", cfg.Server.Addr).Msg("starting fileflow server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("server exited")
}
