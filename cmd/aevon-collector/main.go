package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	corecfg "github.com/aevon-lab/aevon-rum/internal/core/config"
	"github.com/aevon-lab/aevon-rum/internal/core/storage"
	"github.com/aevon-lab/aevon-rum/internal/core/storage/memory"
	"github.com/aevon-lab/aevon-rum/internal/core/storage/postgres"
	"github.com/aevon-lab/aevon-rum/internal/ingestion"
	"github.com/aevon-lab/aevon-rum/internal/migrations"
	"github.com/aevon-lab/aevon-rum/internal/projection"
	"github.com/aevon-lab/aevon-rum/internal/server"
)

func main() {
	configPath := pflag.StringP("config", "c", "aevon-rum.yaml", "Path to configuration file")
	debug := pflag.Bool("debug", false, "Enable debug logging")
	pflag.Parse()

	// 0. Initialize Logger
	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	// 1. Load Configuration
	cfg, err := corecfg.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	slog.Info("Loaded config",
		"store", cfg.Collector.Store,
		"host", cfg.Collector.Host,
		"port", cfg.Collector.Port,
		"max_body_size_mb", cfg.Collector.MaxBodySizeMB)

	// 2. Initialize Storage
	store, closeStore, err := openStore(cfg.Collector)
	if err != nil {
		slog.Error("Failed to initialize store", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	// 3. Initialize Ingestion and Projection
	ingestionSvc := ingestion.NewService(store, cfg.Collector.MaxBodySizeMB)
	projectionSvc := projection.NewService(store)

	// 4. Initialize Server
	srv := server.New(fmtAddr(cfg.Collector.Host, cfg.Collector.Port), store, cfg.Collector.Mode, cfg.Collector.AllowedOrigins)
	ingestionSvc.RegisterRoutes(srv.Engine)
	projectionSvc.RegisterRoutes(srv.Engine)

	// 5. Start Services
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Signal handler triggers the shutdown sequence below.
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		slog.Info("Signal received, shutting down...")
		cancel()
	}()

	// HTTP server blocks until ctx is cancelled.
	if err := srv.Run(ctx); err != nil {
		slog.Error("Server stopped with error", "error", err)
	}

	slog.Info("Shutdown complete")
}

// openStore builds the configured BatchStore and its close function.
func openStore(cfg corecfg.CollectorConfig) (storage.BatchStore, func(), error) {
	switch cfg.Store {
	case "postgres":
		db, err := postgres.Open(cfg.DSN, cfg.MaxOpenConns, cfg.MaxIdleConns)
		if err != nil {
			return nil, nil, err
		}
		if err := migrations.RunMigrations(db, cfg.AutoMigrate); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to run database migrations: %w", err)
		}
		adapter, err := postgres.NewAdapter(db)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		return adapter, func() {
			if err := adapter.Close(); err != nil {
				slog.Error("Failed to close postgres adapter", "error", err)
			}
		}, nil
	default:
		slog.Warn("Using in-memory store; batches are lost on restart")
		return memory.NewStore(), func() {}, nil
	}
}

func fmtAddr(host string, port int) string {
	return fmt.Sprintf("%s:%d", host, port)
}
