package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/joho/godotenv"

	"github.com/couchcryptid/disaster-incident-service/internal/adapter/httpadapter"
	kafkaadapter "github.com/couchcryptid/disaster-incident-service/internal/adapter/kafka"
	"github.com/couchcryptid/disaster-incident-service/internal/adapter/memory"
	"github.com/couchcryptid/disaster-incident-service/internal/adapter/newsfeed"
	redisadapter "github.com/couchcryptid/disaster-incident-service/internal/adapter/redis"
	"github.com/couchcryptid/disaster-incident-service/internal/config"
	"github.com/couchcryptid/disaster-incident-service/internal/domain"
	"github.com/couchcryptid/disaster-incident-service/internal/observability"
	"github.com/couchcryptid/disaster-incident-service/internal/pipeline"
	"github.com/couchcryptid/disaster-incident-service/internal/scoring"
)

func main() {
	// A missing .env is fine; the environment wins either way.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	corpus, stopRefresh, err := newCorpus(ctx, cfg, logger, metrics)
	if err != nil {
		logger.Error("failed to set up reference corpus", "error", err)
		os.Exit(1)
	}
	defer stopRefresh()

	scorer := scoring.New(corpus, logger, metrics,
		scoring.WithWorkers(cfg.ScorerWorkers),
		scoring.WithCacheSize(cfg.ScoreCacheSize),
	)
	engine := pipeline.NewEngine(pipeline.EngineConfig{
		RadiusMeters:        cfg.ProximityRadiusMeters,
		SplitThreshold:      cfg.KMeansSplitThreshold,
		SpreadTolerance:     cfg.KMeansSpreadTolerance,
		MaxIterations:       cfg.KMeansMaxIterations,
		EpsilonMeters:       cfg.KMeansEpsilonMeters,
		SimilarityThreshold: cfg.SimilarityThreshold,
		VerifyMinReports:    cfg.VerifyMinReports,
	}, scorer, logger, metrics)

	var (
		store  pipeline.StateStore
		checks readiness
	)
	if cfg.RedisAddr != "" {
		rs, err := redisadapter.NewStore(ctx, cfg, logger)
		if err != nil {
			logger.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer rs.Close()
		store = rs
		checks = append(checks, rs)
	} else {
		logger.Warn("REDIS_ADDR not set, incident state is kept in memory only")
		store = memory.NewStore()
	}

	reader := kafkaadapter.NewReader(cfg, logger)
	writer := kafkaadapter.NewWriter(cfg, logger)

	p := pipeline.New(reader, engine, store, writer, logger, metrics, pipeline.Options{
		BatchSize:       cfg.BatchSize,
		MaxBatchReports: cfg.MaxBatchReports,
	})
	checks = append(checks, p)

	srv := httpadapter.NewServer(cfg.HTTPAddr, checks, engine, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start incident pipeline.
	go func() {
		if err := p.Run(ctx); err != nil {
			logger.Error("pipeline error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if err := reader.Close(); err != nil {
		logger.Error("kafka reader close error", "error", err)
	}
	if err := writer.Close(); err != nil {
		logger.Error("kafka writer close error", "error", err)
	}

	logger.Info("shutdown complete")
}

// newCorpus picks the reference corpus: a news feed, a YAML file, or the
// built-in headlines. Feed and file corpora are refreshed on
// CORPUS_REFRESH_SCHEDULE.
func newCorpus(ctx context.Context, cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) (domain.ReferenceCorpus, func(), error) {
	var source newsfeed.Source
	switch {
	case cfg.NewsFeedURL != "":
		source = newsfeed.NewClient(cfg.NewsFeedURL, cfg.NewsFeedTimeout, logger)
		logger.Info("reference corpus from news feed", "url", cfg.NewsFeedURL)
	case cfg.CorpusFile != "":
		source = newsfeed.NewFile(cfg.CorpusFile)
		logger.Info("reference corpus from file", "path", cfg.CorpusFile)
	default:
		logger.Info("using built-in reference corpus")
		return scoring.NewDefaultCorpus(), func() {}, nil
	}

	corpus := newsfeed.NewCorpus(source, cfg.MaxCorpusItems, logger, metrics)
	if err := corpus.Refresh(ctx); err != nil {
		// Scoring degrades to 0 until a scheduled refresh succeeds.
		logger.Warn("initial corpus load failed", "error", err)
	}
	stopRefresh, err := corpus.Schedule(ctx, cfg.CorpusRefreshSchedule)
	if err != nil {
		return nil, nil, err
	}
	return corpus, stopRefresh, nil
}

// readiness reports ready only when every check passes.
type readiness []sharedobs.ReadinessChecker

func (r readiness) CheckReadiness(ctx context.Context) error {
	for _, c := range r {
		if err := c.CheckReadiness(ctx); err != nil {
			return err
		}
	}
	return nil
}
