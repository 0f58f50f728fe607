package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jobctl/jobmaster/internal/api"
	"github.com/jobctl/jobmaster/internal/clock"
	"github.com/jobctl/jobmaster/internal/config"
	"github.com/jobctl/jobmaster/internal/events"
	"github.com/jobctl/jobmaster/internal/jobmaster"
	"github.com/jobctl/jobmaster/internal/logger"
	"github.com/jobctl/jobmaster/internal/lostworker"
	"github.com/jobctl/jobmaster/internal/plandef"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.LogLevel, os.Getenv("ENV") != "production")
	log := logger.Get()
	log.Info().Msg("Starting job master...")

	redisClient := redis.NewClient(&redis.Options{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})
	publisher := events.NewRedisPubSub(redisClient)
	defer func() {
		if err := publisher.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close event publisher")
		}
	}()

	reg := plandef.NewRegistry()
	reg.Register("echo", plandef.Echo{})
	reg.Register("noop", plandef.Noop{})
	reg.Register("fanout", plandef.Fanout{})

	clk := clock.Real{}
	sink := events.NewSink(publisher)
	master := jobmaster.New(clk, reg, jobmaster.Config{
		JobCapacity:           cfg.JobMaster.JobCapacity,
		FinishedJobRetention:  cfg.JobMaster.FinishedJobRetention,
		FinishedJobPurgeCount: cfg.JobMaster.FinishedJobPurgeCount,
		FinishedJobHistory:    cfg.JobMaster.FinishedJobHistorySize,
		WorkerTimeout:         cfg.JobMaster.WorkerTimeout,
	}, sink)

	detector := lostworker.New(master.Workers(), master.Tracker(), cfg.JobMaster.WorkerTimeout.Milliseconds(), func(workerID int64) {
		sink.WorkerLost(workerID)
		log.Warn().Int64("worker_id", workerID).Msg("worker declared lost")
	})
	scheduler := clock.NewScheduler(clk)
	cancelSweep := scheduler.Schedule(cfg.JobMaster.LostWorkerInterval, detector.Sweep)
	defer cancelSweep()

	server := api.NewServer(cfg, master, publisher)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	server.Start(ctx)

	go func() {
		log.Info().Str("addr", httpServer.Addr).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down job master...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	server.Stop()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	log.Info().Msg("Job master stopped")
}
