package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/collectivehq/pagesearch/internal/api"
	"github.com/collectivehq/pagesearch/internal/index/indexer"
	"github.com/collectivehq/pagesearch/internal/index/searcher"
	"github.com/collectivehq/pagesearch/internal/index/stemmer"
	"github.com/collectivehq/pagesearch/internal/index/store"
	"github.com/collectivehq/pagesearch/internal/links"
	"github.com/collectivehq/pagesearch/internal/search/cache"
	"github.com/collectivehq/pagesearch/internal/service"
	"github.com/collectivehq/pagesearch/internal/source"
	"github.com/collectivehq/pagesearch/pkg/config"
	"github.com/collectivehq/pagesearch/pkg/health"
	"github.com/collectivehq/pagesearch/pkg/logger"
	"github.com/collectivehq/pagesearch/pkg/metrics"
	"github.com/collectivehq/pagesearch/pkg/middleware"
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
	slog.Info("starting search service", "port", cfg.Server.Port)

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
	var redisClient *pkgredis.Client
	redisClient, err = pkgredis.NewClient(cfg.Redis)
	if err != nil {
		slog.Warn("redis unavailable, search caching disabled", "error", err)
	} else {
		defer redisClient.Close()
		queryCache = cache.New(redisClient, cfg.Redis.CacheTTL)
		slog.Info("search cache enabled",
			"addr", cfg.Redis.Addr,
			"ttl", cfg.Redis.CacheTTL,
		)
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

	engine := service.New(indexStore, ix, se, src, ex, queryCache, nil, m)

	checker := health.NewChecker()
	checker.Register("postgres", func(ctx context.Context) health.ComponentHealth {
		if err := pgClient.Ping(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})
	checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
		if redisClient == nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "not configured"}
		}
		if err := redisClient.Ping(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})

	h := api.New(engine, queryCache, cfg.Search.DefaultLimit, cfg.Search.MaxResults)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/collectives/{collective}/search", h.Search)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/collectives/{collective}/cache/invalidate", h.CacheInvalidate)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	chain = middleware.Metrics(m)(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("search service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("search service stopped")
}
