package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"pickasso/internal/config"
	"pickasso/internal/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, err := log.New(log.Config{
		Level:    cfg.Log.Level,
		File:     cfg.Log.File,
		NoColors: cfg.Log.NoColors,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewApp(cfg, logger).Run(ctx); err != nil {
		logger.WithError(err).Error("Pickasso exited")
		stop()
		os.Exit(1)
	}
}
