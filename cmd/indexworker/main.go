package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/collectivehq/pagesearch/internal/index/indexer"
	"github.com/collectivehq/pagesearch/internal/index/searcher"
	"github.com/collectivehq/pagesearch/internal/index/stemmer"
	"github.com/collectivehq/pagesearch/internal/index/store"
	"github.com/collectivehq/pagesearch/internal/links"
	"github.com/collectivehq/pagesearch/internal/search/cache"
	"github.com/collectivehq/pagesearch/internal/service"
	"github.com/collectivehq/pagesearch/internal/source"
	"github.com/collectivehq/pagesearch/pkg/config"
	"github.com/collectivehq/pagesearch/pkg/kafka"
	"github.com/collectivehq/pagesearch/pkg/logger"
	"github.com/collectivehq/pagesearch/pkg/metrics"
	"github.com/collectivehq/pagesearch/pkg/postgres"
	pkgredis "github.com/collectivehq/pagesearch/pkg/redis"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting index worker",
		"topic", cfg.Kafka.Topics.PageChanged,
		"sweep_interval", cfg.Indexer.SweepInterval,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
	}

	pgClient, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer pgClient.Close()

	indexStore, err := store.NewPostgres(ctx, pgClient)
	if err != nil {
		slog.Error("failed to prepare index store", "error", err)
		os.Exit(1)
	}

	var queryCache *cache.QueryCache
	if redisClient, err := pkgredis.NewClient(cfg.Redis); err != nil {
		slog.Warn("redis unavailable, cache invalidation disabled", "error", err)
	} else {
		defer redisClient.Close()
		queryCache = cache.New(redisClient, cfg.Redis.CacheTTL)
	}

	stem := stemmer.New(cfg.Indexer.Language)
	policy, err := indexer.ParsePolicy(cfg.Indexer.FailurePolicy)
	if err != nil {
		slog.Error("invalid indexer policy", "error", err)
		os.Exit(1)
	}
	ix := indexer.New(indexStore, stem, policy, m)
	se := searcher.New(indexStore, stem, cfg.Search.Fuzzy, cfg.Search.FuzzyTermLimit, m)
	src := source.NewFS(cfg.Source.RootDir)
	ex := links.NewExtractor(cfg.Links.WebRoot, cfg.Links.AppPath, cfg.Links.TrustedHosts, m)

	linksProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.PageLinks)
	defer linksProducer.Close()

	engine := service.New(indexStore, ix, se, src, ex, queryCache, linksProducer, m)

	consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.PageChanged, service.HandlePageChanged(engine))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := consumer.Start(ctx); err != nil && ctx.Err() == nil {
			slog.Error("consumer stopped", "error", err)
			stop()
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		runSweeps(ctx, engine, cfg.Indexer.SweepInterval)
	}()

	<-ctx.Done()
	slog.Info("shutdown signal received")
	wg.Wait()
	slog.Info("index worker stopped")
}

// runSweeps reindexes every collective once at startup and then on each tick.
// The sweep catches pages whose change events were lost or never produced.
func runSweeps(ctx context.Context, engine *service.Engine, interval time.Duration) {
	if interval <= 0 {
		return
	}
	sweep := func() {
		start := time.Now()
		if err := engine.ReindexAll(ctx); err != nil {
			slog.Error("reindex sweep finished with errors",
				"error", err,
				"duration", time.Since(start),
			)
			return
		}
		slog.Info("reindex sweep complete", "duration", time.Since(start))
	}

	sweep()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweep()
		}
	}
}
