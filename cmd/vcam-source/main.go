package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/e7canasta/orion-care-sensor/modules/vcam/internal/core"
)

const defaultConfigPath = "config/vcam.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	debug := flag.Bool("debug", false, "Enable debug logging")
	check := flag.Bool("check", false, "Validate the configuration and test frame, then exit")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	source, err := core.NewSource(*configPath)
	if err != nil {
		slog.Error("vcam-source: invalid setup", "config", *configPath, "error", err)
		os.Exit(1)
	}

	if *check {
		slog.Info("vcam-source: configuration ok", source.Summary()...)
		if err := source.Shutdown(context.Background()); err != nil {
			slog.Error("vcam-source: release failed", "error", err)
			os.Exit(1)
		}
		return
	}
	slog.Info("vcam-source: configured", source.Summary()...)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runErr := make(chan error, 1)
	go func() { runErr <- source.Run(ctx) }()

	exitCode := 0
	select {
	case <-ctx.Done():
		slog.Info("vcam-source: signal received, stopping")
	case err := <-runErr:
		if err != nil {
			slog.Error("vcam-source: run failed", "error", err)
			exitCode = 1
		}
	}
	stop()

	final := source.Stream().Stats()
	timeout := source.ShutdownTimeout()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := source.Shutdown(shutdownCtx); err != nil {
		slog.Error("vcam-source: shutdown failed", "timeout", timeout, "error", err)
		os.Exit(1)
	}

	slog.Info("vcam-source: stopped",
		"emitted", final.Emitted,
		"queue_drops", final.QueueDrops,
		"discontinuities", final.Discontinuities,
	)
	if exitCode != 0 {
		os.Exit(exitCode)
	}
}
