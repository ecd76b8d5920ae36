package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"SafeMap/internal/analysis"
	"SafeMap/internal/api"
	"SafeMap/internal/config"
	"SafeMap/internal/domain"
	"SafeMap/internal/infrastructure/embedcache"
	"SafeMap/internal/infrastructure/embedding"
	"SafeMap/internal/infrastructure/llm"
	"SafeMap/internal/infrastructure/ml"
	"SafeMap/internal/infrastructure/parser"
	"SafeMap/internal/infrastructure/scheduler"
	"SafeMap/internal/infrastructure/storage"
	"SafeMap/internal/infrastructure/telegram"
	"SafeMap/internal/lineage"
	"SafeMap/internal/logging"
	"SafeMap/internal/metrics"
	"SafeMap/internal/ports"
	"SafeMap/internal/scanner"
	"SafeMap/internal/similarity"
	"SafeMap/internal/usecase"
)

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg    config.Config
	logger *slog.Logger

	store     *storage.Store
	lineage   *lineage.Manager
	pipeline  *usecase.Pipeline
	clusters  *usecase.ClusterService
	metrics   *metrics.Metrics
	scheduler *usecase.Scheduler

	closers []func() error
}

// New opens storage and the embedding stack and builds every use case.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (_ *Application, err error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}
	a := &Application{cfg: cfg, logger: baseLogger, metrics: metrics.New()}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	a.store, err = openStore(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.store.Close)

	embedder, err := a.newEmbedder(cfg.Embedding)
	if err != nil {
		return nil, err
	}

	analyzerOpts := []analysis.Option{analysis.WithLogger(baseLogger.With("component", "analysis"))}
	if cfg.Pipeline.ANN.Enabled {
		ann := cfg.Pipeline.ANN
		analyzerOpts = append(analyzerOpts, analysis.WithPairGenerator(similarity.HNSW{
			Neighbors: ann.Neighbors,
			M:         ann.M,
			EfSearch:  ann.EfSearch,
		}))
	}
	analyzer := analysis.New(embedder, analyzerOpts...)

	registry := scanner.NewRegistry(
		parser.NewNewsAPIScanner(cfg.NewsAPI, nil, baseLogger.With("component", "scanner.newsapi")),
		parser.NewRSSScanner(nil, baseLogger.With("component", "scanner.rss")),
		parser.NewCSVScanner(),
	)
	source := parser.NewStrategySource(registry, cfg.Sites, baseLogger.With("component", "source"))

	var notifier ports.Notifier
	if tg := cfg.Notifications.Telegram; tg.Enabled() {
		notifier = telegram.NewNotifier(tg.APIBase, tg.BotToken, tg.ChatID)
	}

	a.lineage = lineage.NewManager(a.store,
		lineage.WithLogger(baseLogger.With("component", "lineage")),
		lineage.WithRecorder(a.metrics),
	)
	a.pipeline = usecase.NewPipeline(usecase.PipelineDeps{
		Source:       source,
		Store:        a.store,
		Analyzer:     analyzer,
		Notifier:     notifier,
		Recorder:     a.metrics,
		Logger:       baseLogger.With("component", "pipeline"),
		LookbackDays: cfg.Pipeline.LookbackDays,
	})
	a.clusters = usecase.NewClusterService(a.store)

	driver := scheduler.NewCronScheduler(
		cfg.Scheduler.CronExpression,
		cfg.Scheduler.Location(),
		cfg.Scheduler.RunOnStart,
		baseLogger.With("component", "scheduler"),
	)
	a.scheduler = usecase.NewScheduler(driver, a.pipeline, baseLogger.With("component", "scheduler"))

	baseLogger.Info("application ready",
		"database", cfg.Database.Driver,
		"embedder", embedder.Model(),
		"cache", cfg.Embedding.Cache.Backend,
		"ann", cfg.Pipeline.ANN.Enabled,
		"sites", len(cfg.Sites),
		"telegram", notifier != nil,
	)
	return a, nil
}

func openStore(ctx context.Context, cfg config.DatabaseConfig) (*storage.Store, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		return storage.OpenPostgres(ctx, cfg.DSN)
	case config.DriverSQLite:
		return storage.OpenSQLite(ctx, cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

func (a *Application) newEmbedder(cfg config.EmbeddingConfig) (ports.Embedder, error) {
	var inner ports.Embedder
	switch cfg.Provider {
	case config.ProviderHashing:
		inner = embedding.NewHashingEmbedder(cfg.Dimension)
	case config.ProviderML:
		inner = ml.NewClient(cfg.ML.Endpoint, cfg.ML.APIKey, ml.Options{
			Model:             cfg.ML.Model,
			BatchSize:         cfg.ML.BatchSize,
			RequestsPerSecond: cfg.ML.RequestsPerSecond,
			Timeout:           cfg.ML.Timeout,
		})
	case config.ProviderOpenAI:
		e, err := llm.NewOpenAIEmbedder(cfg.OpenAI, a.logger.With("component", "embedder.openai"))
		if err != nil {
			return nil, err
		}
		inner = e
	default:
		return nil, fmt.Errorf("unsupported embedding provider %q", cfg.Provider)
	}

	var cache ports.EmbeddingCache
	switch cfg.Cache.Backend {
	case "", config.CacheNone:
		return inner, nil
	case config.CacheRedis:
		client, err := embedcache.NewRedisClient(embedcache.RedisConfig{
			Address:  cfg.Cache.Redis.Address,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
		})
		if err != nil {
			return nil, fmt.Errorf("embedding cache: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		cache = embedcache.NewRedisCache(client, cfg.Cache.Redis.TTL)
	case config.CacheBadger:
		db, err := embedcache.OpenBadger(embedcache.BadgerConfig{
			Path:   cfg.Cache.BadgerPath,
			Logger: a.logger,
		})
		if err != nil {
			return nil, fmt.Errorf("embedding cache: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		cache = db
	default:
		return nil, fmt.Errorf("unsupported embedding cache %q", cfg.Cache.Backend)
	}
	return embedcache.New(inner, cache, a.logger.With("component", "embedcache")), nil
}

// Serve starts the scheduler and the HTTP API and blocks until ctx is cancelled.
func (a *Application) Serve(ctx context.Context) error {
	if err := a.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer func() {
		timeout := a.cfg.HTTP.ShutdownTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		stopCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := a.scheduler.Stop(stopCtx); err != nil {
			a.logger.Warn("scheduler stop", "error", err)
		}
	}()

	handler := api.NewHandler(a.lineage, a.pipeline, a.clusters, a.store, a.logger.With("component", "api"))
	router := api.NewRouter(handler, a.metrics.Handler(), a.logger.With("component", "http"))
	return api.NewServer(a.cfg.HTTP, router, a.logger.With("component", "http")).Run(ctx)
}

// RunWindow performs a single fetch-analyse-notify cycle ending now.
func (a *Application) RunWindow(ctx context.Context) (domain.PipelineResult, error) {
	now := time.Now().In(a.cfg.Scheduler.Location())
	return a.pipeline.ProcessWindow(ctx, now)
}

// RunArticles analyses and stores a caller-supplied batch.
func (a *Application) RunArticles(ctx context.Context, articles []domain.Article) (domain.PipelineResult, error) {
	return a.pipeline.Run(ctx, articles)
}

// Reannotate recomputes annotations of every active incident.
func (a *Application) Reannotate(ctx context.Context) (domain.PipelineResult, error) {
	return a.pipeline.Reannotate(ctx)
}

// Close releases storage and cache handles in reverse order of opening.
func (a *Application) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
