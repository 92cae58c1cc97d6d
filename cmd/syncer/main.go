package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"news_ingest/internal/config"
	"news_ingest/internal/extract"
	"news_ingest/internal/feed"
	"news_ingest/internal/fetch"
	"news_ingest/internal/publisher"
	"news_ingest/internal/scheduler"
	"news_ingest/internal/service"
	"news_ingest/internal/storage/postgres"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	logger := setupLogger("info")

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger = setupLogger(cfg.LogLevel)

	db, err := sqlx.Connect("postgres", cfg.Database.DSN())
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to database")

	// The publisher is optional; without a broker URL, change events are
	// simply not emitted.
	var pub service.Publisher
	if cfg.RabbitMQ.URL != "" {
		rabbitMQ, err := publisher.NewRabbitMQ(publisher.Config{
			URL:        cfg.RabbitMQ.URL,
			Exchange:   cfg.RabbitMQ.Exchange,
			RoutingKey: cfg.RabbitMQ.RoutingKey,
			QueueName:  cfg.RabbitMQ.QueueName,
		}, logger)
		if err != nil {
			logger.Error("failed to connect to rabbitmq", "error", err)
			os.Exit(1)
		}
		defer rabbitMQ.Close()
		pub = rabbitMQ
	}

	store := postgres.NewStore(db, cfg.Sync.TargetChunkBytes)

	feedClient := fetch.NewClient(fetch.Config{
		Timeout:   cfg.Sync.FeedTimeout,
		UserAgent: cfg.Sync.UserAgent,
	})
	articleClient := fetch.NewClient(fetch.Config{
		Timeout:   cfg.Sync.ArticleTimeout,
		UserAgent: cfg.Sync.UserAgent,
	})
	extractor := extract.NewExtractor(
		articleClient,
		extract.NewCache(cfg.Sync.ExtractCacheSize, cfg.Sync.ExtractCacheTTL),
	)

	svc := service.New(
		cfg.Sources,
		feedClient,
		feed.NewParser(),
		extractor,
		store,
		pub,
		logger,
	)

	opts := service.Options{
		SourceConcurrency:    cfg.Sync.SourceConcurrency,
		ArticleConcurrency:   cfg.Sync.ArticleConcurrency,
		FeedTimeout:          cfg.Sync.FeedTimeout,
		ArticleTimeout:       cfg.Sync.ArticleTimeout,
		MaxArticlesPerSource: cfg.Sync.MaxArticlesPerSource,
		MaxSourcesPerRun:     cfg.Sync.MaxSourcesPerRun,
		FetchFullText:        cfg.Sync.FetchFullText,
	}

	sched := scheduler.NewScheduler(svc, cfg.Sync.Interval, cfg.Sync.RunBudget, opts, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	logger.Info("starting news ingest syncer",
		"sources", len(cfg.Sources),
		"interval", cfg.Sync.Interval,
		"fetch_full_text", cfg.Sync.FetchFullText,
	)

	if err := sched.Start(ctx); err != nil && err != context.Canceled {
		logger.Error("scheduler error", "error", err)
		os.Exit(1)
	}
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}
