package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jobctl/jobmaster/internal/config"
	"github.com/jobctl/jobmaster/internal/demoworker"
	"github.com/jobctl/jobmaster/internal/logger"
	"github.com/jobctl/jobmaster/pkg/client"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.LogLevel, os.Getenv("ENV") != "production")
	log := logger.Get()
	log.Info().Msg("Starting demo worker...")

	c, err := client.New(cfg.DemoWorker.ServerURL, client.WithAPIKey(cfg.DemoWorker.APIKey))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build job master client")
	}

	pool := demoworker.NewPool(c, demoworker.EchoHandler, demoworker.Config{
		Host:              cfg.DemoWorker.Host,
		RPCPort:           cfg.DemoWorker.RPCPort,
		Concurrency:       cfg.DemoWorker.Concurrency,
		HeartbeatInterval: cfg.DemoWorker.HeartbeatInterval,
		TaskTimeout:       cfg.DemoWorker.TaskTimeout,
		ShutdownTimeout:   cfg.DemoWorker.ShutdownTimeout,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := pool.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start worker pool")
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down demo worker...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.DemoWorker.ShutdownTimeout)
	defer shutdownCancel()

	pool.Stop(shutdownCtx)

	log.Info().Msg("Demo worker stopped")
}
