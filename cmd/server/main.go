package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"triage/internal/app"
	"triage/internal/config"
	"triage/internal/k8s"
	"triage/internal/server"

	_ "triage/docs"
)

// @title Triage API
// @version 1.0
// @description Email triage pipeline: ingestion, LLM analysis, reply drafting and task fan-out.
// @BasePath /
func main() {
	// Load configuration
	cfg := config.Load()

	// Setup logger
	logger := cfg.SetupLogger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialise")
	}
	defer a.Close()

	deps := server.Deps{
		DB:              a.DB,
		Ingester:        a.Ingestor,
		Importer:        a.Ingestor,
		Generations:     a.Store,
		EnqueueAnalysis: a.Producer.EnqueueAnalysis,
		EnqueueReply:    a.Producer.EnqueueReply,
		Dispatcher:      a.Producer,
		Queue:           a.Redis,
	}
	if a.Analytics != nil {
		deps.Analytics = a.Analytics
	}

	a.InitFanout()
	deps.Fanout = a.Fanout

	if err := a.InitPipeline(); err != nil {
		logger.Warn().Err(err).Msg("LLM pipeline disabled, analysis and reply endpoints are not served")
	} else {
		deps.Analysis = a.Analysis
		deps.Reply = a.Reply
	}

	if client, err := k8s.NewClient(cfg.K8sNamespace, cfg.JobImage); err != nil {
		logger.Info().Err(err).Msg("Kubernetes client unavailable, fan-out jobs run on workers only")
	} else {
		deps.Jobs = client
	}

	// Create and initialize server
	srv := server.New(cfg, deps, logger)
	srv.Initialize()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Graceful shutdown failed")
	}
}
