// aevon-rum drives the telemetry client from the command line. It reads
// newline-delimited JSON commands from stdin, for example
//
//	{"command":"recordPageView","payload":"/home"}
//	{"command":"recordEvent","payload":{"type":"aevon.rum.custom_event","data":{"k":"v"}}}
//
// and ships the recorded events to the configured collector. EOF or
// SIGTERM triggers the final flush.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	corecfg "github.com/aevon-lab/aevon-rum/internal/core/config"
	"github.com/aevon-lab/aevon-rum/internal/rum"
)

func main() {
	configPath := pflag.StringP("config", "c", "aevon-rum.yaml", "Path to configuration file")
	debug := pflag.Bool("debug", false, "Enable debug logging")
	queueSize := pflag.Int("queue-size", rum.DefaultQueueSize, "Commands held while the client starts")
	pflag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	// stdout stays free for the caller; logs go to stderr.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		slog.Info("Signal received, flushing...")
		cancel()
	}()

	// Commands arriving before the client is ready are queued.
	bootstrap := rum.NewBootstrap(*queueSize)
	inputDone := make(chan error, 1)
	go func() {
		inputDone <- readCommands(ctx, os.Stdin, bootstrap.Enqueue)
	}()

	cfg, err := corecfg.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	client, err := rum.New(cfg)
	if err != nil {
		slog.Error("Failed to create client", "error", err)
		os.Exit(1)
	}

	if err := bootstrap.Attach(ctx, client); err != nil {
		slog.Warn("Some queued commands failed", "error", err)
	}

	runDone := make(chan error, 1)
	go func() {
		runDone <- client.Start(ctx)
	}()

	select {
	case err := <-inputDone:
		if err != nil {
			slog.Error("Failed to read commands", "error", err)
		}
		cancel()
	case <-ctx.Done():
	}

	// Start performs the page-hide flush once ctx is cancelled.
	if err := <-runDone; err != nil {
		slog.Error("Dispatch loop stopped with error", "error", err)
	}
	slog.Info("Shutdown complete")
}
