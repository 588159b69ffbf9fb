package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sy264115809/techshow/internal/config"
	"github.com/sy264115809/techshow/internal/db"
	"github.com/sy264115809/techshow/internal/logger"
	"github.com/sy264115809/techshow/internal/server"
	"github.com/sy264115809/techshow/internal/telemetry"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Init("info", false)
		logger.Log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize logging and metrics
	logger.Init(cfg.Logging.Level, cfg.Logging.Pretty)
	telemetry.Init()

	logger.Log.Info().
		Str("log_level", cfg.Logging.Level).
		Str("database", cfg.Database.Path).
		Msg("Starting techshow channel service")

	// Connect to the database
	database, err := db.New(cfg.Database.Path)
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer database.Close() // nolint:errcheck

	// Apply pending migrations
	sqlDB, err := database.GetSQLDB()
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to access underlying database connection")
	}
	if err := db.RunMigrations(sqlDB, cfg.Database.MigrationsPath); err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to run migrations")
	}

	// Build the server
	srv := server.New(cfg, database)

	// Run the server until it fails or we are told to stop
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	// Wait for a shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			logger.Log.Fatal().Err(err).Msg("Server failed")
		}
	case sig := <-quit:
		logger.Log.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	}

	// Graceful shutdown with a deadline
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Log.Error().Err(err).Msg("Graceful shutdown failed")
		os.Exit(1)
	}
}
