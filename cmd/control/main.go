package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	controlapp "github.com/qudata/control/internal/app/control"
	"github.com/qudata/control/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger, err := config.NewLogger(cfg, "control")
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		os.Exit(1)
	}

	logger.Info("starting qudata-control",
		"version", config.Version,
		"build_time", config.BuildTime,
		"debug", cfg.Debug,
	)

	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM,
	)
	defer cancel()

	app, err := controlapp.NewApplication(cfg, logger)
	if err != nil {
		logger.Error("failed to create control plane", "err", err)
		os.Exit(1)
	}

	if err := app.Run(ctx); err != nil {
		logger.Error("control plane exited with error", "err", err)
		os.Exit(1)
	}

	logger.Info("control plane stopped cleanly")
}
