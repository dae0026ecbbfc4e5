package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"triage/internal/app"
	"triage/internal/config"
	"triage/internal/queue"
	"triage/internal/worker"
)

func main() {
	cfg := config.Load()
	logger := cfg.SetupLogger().With().Str("process", "worker").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialise")
	}
	defer a.Close()

	if err := a.InitPipeline(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialise LLM pipeline")
	}

	hostname, _ := os.Hostname()
	consumer := queue.NewConsumer(a.Redis, queue.ConsumerConfig{
		Prefix: queue.DefaultPrefix,
		Name:   fmt.Sprintf("%s-%d", hostname, os.Getpid()),
	}, logger)

	policy := worker.DefaultRetryPolicy()
	if cfg.JobTimeout > 0 {
		policy.AttemptTimeout = cfg.JobTimeoutDuration()
	}

	router := worker.NewRouter(a.Analysis, a.Reply, a.Fanout, logger)
	pool := worker.NewPool(router, consumer, policy, cfg.WorkerCount, logger)

	// running jobs outlive the signal so they can finish during shutdown
	workCtx, cancelWork := context.WithCancel(context.Background())
	defer cancelWork()
	if err := pool.Start(workCtx); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start worker pool")
	}

	if err := consumer.Run(ctx, pool.Submit); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("Consumer stopped")
	}

	logger.Info().Msg("Draining worker pool")
	drainCtx, cancel := context.WithTimeout(context.Background(), policy.AttemptTimeout+10*time.Second)
	defer cancel()
	if err := pool.Close(drainCtx); err != nil {
		logger.Warn().Err(err).Msg("Worker pool did not drain cleanly, unfinished jobs stay pending")
	}
}
