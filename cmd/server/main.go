// Command server runs the adaptive retrieval service over HTTP with
// health probes and Prometheus metrics.
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

	"github.com/searchlab/adaptive-retrieval/internal/analytics"
	"github.com/searchlab/adaptive-retrieval/internal/corpus"
	"github.com/searchlab/adaptive-retrieval/internal/index"
	"github.com/searchlab/adaptive-retrieval/internal/router"
	"github.com/searchlab/adaptive-retrieval/internal/searcher"
	"github.com/searchlab/adaptive-retrieval/internal/searcher/cache"
	"github.com/searchlab/adaptive-retrieval/internal/searcher/handler"
	"github.com/searchlab/adaptive-retrieval/internal/telemetry"
	"github.com/searchlab/adaptive-retrieval/pkg/config"
	"github.com/searchlab/adaptive-retrieval/pkg/health"
	"github.com/searchlab/adaptive-retrieval/pkg/kafka"
	"github.com/searchlab/adaptive-retrieval/pkg/logger"
	"github.com/searchlab/adaptive-retrieval/pkg/metrics"
	"github.com/searchlab/adaptive-retrieval/pkg/middleware"
	pkgredis "github.com/searchlab/adaptive-retrieval/pkg/redis"
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
	slog.Info("starting retrieval service", "port", cfg.Server.Port, "backend", cfg.Telemetry.Backend)

	docs, err := corpus.LoadDocuments(cfg.Search.CorpusPath)
	if err != nil {
		slog.Error("failed to load corpus", "error", err)
		os.Exit(1)
	}
	labels, err := corpus.LoadLabels(cfg.Search.LabelsPath)
	if err != nil {
		slog.Error("failed to load labels", "error", err)
		os.Exit(1)
	}
	stats := index.Build(docs, cfg.Search.RareDFThreshold)
	slog.Info("corpus indexed", "docs", len(docs), "vocab", len(stats.Vocab), "labels", len(labels))

	store, err := telemetry.New(cfg.Telemetry, cfg.Postgres)
	if err != nil {
		slog.Error("failed to create telemetry store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := searcher.Options{}
	if cfg.Metrics.Enabled {
		opts.Metrics = metrics.New()
	}

	var redisClient *pkgredis.Client
	if cfg.Redis.Enabled {
		redisClient, err = pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, result caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			opts.Cache = cache.New(redisClient, cfg.Redis)
			slog.Info("result cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.RunEventTopic)
		defer producer.Close()
		collector := analytics.NewCollector(producer, 0)
		collector.Start(ctx)
		defer collector.Close()
		opts.Collector = collector
		slog.Info("run-event stream enabled", "topic", cfg.Kafka.RunEventTopic)
	}

	rt := router.New(stats.Vocab, stats.RareTerms, store, cfg.Router.StateKey, cfg.Router.LR)
	s := searcher.New(docs, stats, labels, rt, store, opts)
	h := handler.New(s, store, cfg.Search.DefaultK, cfg.Search.MaxK)

	checker := health.NewChecker()
	if pinger, ok := store.(interface{ Ping(context.Context) error }); ok {
		checker.Register("telemetry", func(ctx context.Context) health.ComponentHealth {
			if err := pinger.Ping(ctx); err != nil {
				return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
			}
			return health.ComponentHealth{Status: health.StatusUp}
		})
	}
	if redisClient != nil {
		checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
			if err := redisClient.Ping(ctx); err != nil {
				return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
			}
			return health.ComponentHealth{Status: health.StatusUp}
		})
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /search", h.Search)
	mux.HandleFunc("GET /runs", h.Runs)
	mux.HandleFunc("GET /stats", h.Stats)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var root http.Handler = mux
	root = middleware.Timeout(cfg.Server.RequestTimeout)(root)
	if opts.Metrics != nil {
		root = middleware.Metrics(opts.Metrics)(root)
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      root,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	var metricsShutdown func(context.Context) error
	if cfg.Metrics.Enabled {
		metricsShutdown = metrics.StartServer(cfg.Metrics.Port)
	}

	go func() {
		slog.Info("http server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("http server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown error", "error", err)
	}
	if metricsShutdown != nil {
		if err := metricsShutdown(shutdownCtx); err != nil {
			slog.Error("metrics shutdown error", "error", err)
		}
	}
}
