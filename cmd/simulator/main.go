package main

import (
	"context"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"binwatch/internal/config"
	"binwatch/internal/logger"
	"binwatch/internal/simulator"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Init("info", "binwatch-simulator")
		logger.Logger.Fatal().Err(err).Msg("failed to load config")
	}
	logger.Init(cfg.LogLevel, "binwatch-simulator")

	seed := cfg.Simulator.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	logger.Logger.Info().Int64("seed", seed).Str("api_base", cfg.Simulator.APIBase).Msg("starting simulator")

	client := simulator.NewHTTPClient(cfg.Simulator.APIBase, cfg.Simulator.PostTimeout, cfg.Simulator.ConfigTimeout)
	sched := simulator.NewScheduler(simulator.SchedulerConfig{
		Client:       client,
		Rand:         rand.New(rand.NewSource(seed)),
		Intervals:    cfg.Simulator.Intervals,
		PollInterval: cfg.Simulator.PollInterval,
		TickInterval: cfg.Simulator.TickInterval,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := sched.Run(ctx); err != nil {
		logger.Logger.Error().Err(err).Msg("simulator exited")
		stop()
		os.Exit(1)
	}
}
