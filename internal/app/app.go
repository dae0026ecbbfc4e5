// Package app wires the stores, queues and jobs shared by the binaries.
package app

import (
	"context"
	"fmt"
	"time"

	"triage/internal/analytics"
	"triage/internal/config"
	"triage/internal/database"
	"triage/internal/emails"
	"triage/internal/jobs"
	"triage/internal/llm"
	"triage/internal/notify"
	"triage/internal/queue"
	"triage/internal/search"
	"triage/internal/staff"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// App holds the process-wide dependencies. Pipeline fields stay nil until
// InitPipeline succeeds.
type App struct {
	Config *config.Config
	Logger zerolog.Logger

	DB        *sqlx.DB
	Store     *database.Store
	Redis     *redis.Client
	Producer  *queue.Producer
	Analytics *analytics.Service // nil when the analytics tables cannot be created
	Ingestor  *emails.Ingestor

	Gateway     *llm.OpenAIGateway
	Searcher    search.Searcher
	VectorStore search.VectorStore
	Analysis    *jobs.AnalysisJob
	Reply       *jobs.ReplyJob
	Fanout      *jobs.FanoutEngine
}

// New connects to PostgreSQL and Redis and applies the schema
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*App, error) {
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is not set")
	}

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	logger.Info().Msg("Database connection established successfully")

	store := database.NewStore(db)
	if err := store.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(opt)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		logger.Warn().Err(err).Msg("Redis is not reachable, jobs cannot be enqueued until it is")
	}

	a := &App{
		Config:   cfg,
		Logger:   logger,
		DB:       db,
		Store:    store,
		Redis:    rdb,
		Producer: queue.NewProducer(rdb, queue.DefaultPrefix),
	}

	svc, err := analytics.NewService(database.NewWriteClientFromDB(db), logger)
	if err != nil {
		logger.Warn().Err(err).Msg("Analytics disabled")
	} else {
		a.Analytics = svc
	}

	var ingestTracker emails.Tracker
	if a.Analytics != nil {
		ingestTracker = a.Analytics
	}
	a.Ingestor = emails.NewIngestor(store, a.Producer, ingestTracker, logger)
	return a, nil
}

// InitPipeline builds the LLM gateway, knowledge search and the jobs
func (a *App) InitPipeline() error {
	cfg := a.Config

	pipeline, err := cfg.BuildPipeline()
	if err != nil {
		return err
	}

	gateway, err := llm.NewOpenAIGateway(cfg, a.Logger)
	if err != nil {
		return err
	}
	a.Gateway = gateway

	if err := a.initSearch(); err != nil {
		// analysis still runs, prompts just lack knowledge snippets
		a.Logger.Warn().Err(err).Str("backend", cfg.SearchBackend).Msg("Knowledge search disabled")
	}

	var tracker jobs.Tracker
	if a.Analytics != nil {
		tracker = a.Analytics
	}
	a.InitFanout()

	a.Analysis = jobs.NewAnalysisJob(a.Store, gateway, pipeline, jobs.AnalysisDeps{
		Searcher:   a.Searcher,
		Dispatcher: a.Producer,
		Tracker:    tracker,
	}, a.Logger)
	a.Reply = jobs.NewReplyJob(a.Store, gateway, a.Searcher, tracker, pipeline, a.Logger)

	a.Logger.Info().Str("default_model", pipeline.Model.Name).Msg("Pipeline initialised")
	return nil
}

// InitFanout builds the fan-out engine. It needs no LLM, so batch fan-out
// runs without completion credentials.
func (a *App) InitFanout() {
	if a.Fanout != nil {
		return
	}
	cfg := a.Config

	var tracker jobs.Tracker
	var notifyTracker notify.Tracker
	if a.Analytics != nil {
		tracker = a.Analytics
		notifyTracker = a.Analytics
	}

	var notifier jobs.Notifier
	if cfg.SendGridAPIKey != "" {
		notifier = notify.NewService(cfg.SendGridAPIKey, cfg.NotifyFrom, notifyTracker, a.Logger)
	} else {
		a.Logger.Info().Msg("SENDGRID_API_KEY not set, urgent task notifications disabled")
	}

	a.Fanout = jobs.NewFanoutEngine(a.Store, staff.NewSelector(a.Store, a.Logger), tracker, notifier, a.Logger)
}

func (a *App) initSearch() error {
	cfg := a.Config

	var searcher search.Searcher
	switch cfg.SearchBackend {
	case "qdrant":
		client, err := search.NewQdrantClient(search.QdrantConfig{
			Host:   cfg.QdrantHost,
			Port:   cfg.QdrantPort,
			APIKey: cfg.QdrantAPIKey,
			UseTLS: cfg.QdrantUseTLS,
		})
		if err != nil {
			return err
		}
		qs := search.NewQdrantSearcher(client, a.Gateway, a.Logger)
		searcher, a.VectorStore = qs, qs
	case "pgvector":
		ps := search.NewPgvectorSearcher(a.DB, a.Gateway)
		searcher, a.VectorStore = ps, ps
	case "", "none":
		return nil
	default:
		return fmt.Errorf("unknown SEARCH_BACKEND %q", cfg.SearchBackend)
	}

	if cfg.SearchCacheTTL > 0 {
		searcher = search.NewCachedSearcher(searcher, time.Duration(cfg.SearchCacheTTL)*time.Second)
	}
	a.Searcher = searcher
	return nil
}

// Close releases the connections
func (a *App) Close() {
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close Redis client")
		}
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close database")
		}
	}
}
