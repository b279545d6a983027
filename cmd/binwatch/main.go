package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	_ "time/tzdata"

	"binwatch/internal/config"
	"binwatch/internal/logger"
	"binwatch/internal/processor"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Init("info", "binwatch")
		logger.Logger.Fatal().Err(err).Msg("failed to load config")
	}
	logger.Init(cfg.LogLevel, "binwatch")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p := processor.New(cfg)
	if err := p.Run(ctx); err != nil {
		logger.Logger.Error().Err(err).Msg("processor exited")
		stop()
		os.Exit(1)
	}
	logger.Logger.Info().Msg("exited")
}
