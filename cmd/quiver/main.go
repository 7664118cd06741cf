package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/quiverdb/quiver/internal/api"
	"github.com/quiverdb/quiver/internal/config"
	"github.com/quiverdb/quiver/internal/cursor"
	"github.com/quiverdb/quiver/internal/exec"
	"github.com/quiverdb/quiver/internal/index"
	"github.com/quiverdb/quiver/internal/logger"
	"github.com/quiverdb/quiver/internal/metrics"
	"github.com/quiverdb/quiver/internal/shutdown"
	"github.com/quiverdb/quiver/internal/sweeper"
	"github.com/rs/zerolog/log"
)

// Version is set at build time
var Version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Log.Level, cfg.Log.Format)
	log.Info().Str("version", Version).Msg("Starting Quiver...")

	metrics.Init(logger.Get("metrics"))

	// Core engine components.
	catalog := index.NewCatalog(logger.Get("index"))
	store := cursor.NewStore(cfg.Cursor.DefaultMaxIdle, logger.Get("cursor"))
	runner := exec.NewRunner(store, cfg.Cursor.DefaultChunkSize, logger.Get("exec"))

	sw, err := sweeper.New(store, cfg.Cursor.SweepSchedule, logger.Get("sweeper"))
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid cursor sweep schedule")
	}
	if err := sw.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start cursor sweeper")
	}

	// HTTP surface.
	server := api.NewServer(&api.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:    time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: time.Duration(cfg.Server.ShutdownTimeout) * time.Second,
	}, logger.Get("api"))

	server.RegisterRoutes()
	app := server.GetApp()
	api.NewIndexHandler(catalog, logger.Get("api")).RegisterRoutes(app)
	api.NewQueryHandler(catalog, runner, logger.Get("api")).RegisterRoutes(app)
	api.NewCursorHandler(runner, logger.Get("api")).RegisterRoutes(app)

	if err := server.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start HTTP server")
	}

	shutdownTimeout := time.Duration(cfg.Server.ShutdownTimeout) * time.Second
	coordinator := shutdown.New(shutdownTimeout, logger.Get("shutdown"))

	// Stop accepting requests first, then the background sweep. Parked
	// cursors hold no external resources, so the store needs no hook.
	coordinator.Register("http-server", 10, func(ctx context.Context) error {
		return server.Shutdown(shutdownTimeout)
	})
	coordinator.Register("cursor-sweeper", 20, func(ctx context.Context) error {
		sw.Stop()
		return nil
	})

	coordinator.WaitForSignal()
	if err := coordinator.Shutdown(); err != nil {
		log.Error().Err(err).Msg("Shutdown finished with errors")
		os.Exit(1)
	}
}
