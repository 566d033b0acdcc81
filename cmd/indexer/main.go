package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Adithya-Monish-Kumar-K/incremental-index/internal/api"
	"github.com/Adithya-Monish-Kumar-K/incremental-index/internal/extensions/trigram"
	"github.com/Adithya-Monish-Kumar-K/incremental-index/internal/extensions/wordindex"
	"github.com/Adithya-Monish-Kumar-K/incremental-index/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/incremental-index/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/incremental-index/internal/lowmem"
	"github.com/Adithya-Monish-Kumar-K/incremental-index/internal/query"
	"github.com/Adithya-Monish-Kumar-K/incremental-index/internal/rebuild"
	"github.com/Adithya-Monish-Kumar-K/incremental-index/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/incremental-index/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/incremental-index/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/incremental-index/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/incremental-index/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/incremental-index/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/incremental-index/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/incremental-index/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/incremental-index/pkg/resilience"
)

const pingTimeout = 2 * time.Second

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	caseSensitive := flag.Bool("case-sensitive", false, "keep identifier case in the word index")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting index service",
		"data_dir", cfg.Indexer.DataDir,
		"forward_backend", cfg.Indexer.ForwardBackend,
		"buffering", cfg.Indexer.BufferingEnabled,
	)

	if err := run(cfg, *caseSensitive); err != nil {
		slog.Error("index service failed", "error", err)
		os.Exit(1)
	}
	slog.Info("index service stopped")
}

func run(cfg *config.Config, caseSensitive bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
		metricsServer := metrics.NewServer(cfg.Metrics.Port, prometheus.DefaultGatherer)
		metricsServer.Start()
		defer metricsServer.Shutdown(context.Background())
	}

	watcher := lowmem.NewWatcher(cfg.Indexer.MemoryLimitBytes, cfg.Indexer.PressureCheckInterval)
	watcher.Start(ctx)

	checker := health.NewChecker()
	deps := indexer.Deps{Metrics: m, Pressure: watcher}

	if cfg.Indexer.ForwardBackend == config.ForwardBackendPostgres {
		pg, err := postgres.New(cfg.Postgres)
		if err != nil {
			return fmt.Errorf("connecting to postgres: %w", err)
		}
		defer pg.Close()
		deps.Postgres = pg
		checker.Register("postgres", health.Ping("postgres", pg, pingTimeout))
	}

	var cache query.Cache
	if cfg.Redis.Enabled {
		rc, err := pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, query cache and rebuild markers disabled", "error", err)
		} else {
			defer rc.Close()
			cache = rc
			deps.Markers = rebuild.NewMarkers(rc, rebuild.DefaultMarkersKey)
			checker.Register("redis", health.Ping("redis", rc, pingTimeout))
			slog.Info("query cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.RebuildRequests)
		defer producer.Close()
		deps.Notifier = rebuild.NewNotifier(producer, resilience.RetryConfig{})
	}

	reg, err := indexer.NewRegistry(cfg.Indexer, cfg.Badger, deps)
	if err != nil {
		return fmt.Errorf("creating registry: %w", err)
	}
	defer func() {
		if err := reg.Close(); err != nil {
			slog.Error("closing registry", "error", err)
		}
	}()

	words, err := indexer.Register(ctx, reg, wordindex.Extension(caseSensitive))
	if err != nil {
		return fmt.Errorf("registering %s: %w", wordindex.Name, err)
	}
	grams, err := indexer.Register(ctx, reg, trigram.Extension())
	if err != nil {
		return fmt.Errorf("registering %s: %w", trigram.Name, err)
	}
	if err := reg.RestoreMarkers(ctx); err != nil {
		slog.Warn("restoring rebuild markers failed", "error", err)
	}
	if err := reg.CheckRebuild(ctx); err != nil {
		slog.Warn("starting pending rebuilds failed, retrying on next flush", "error", err)
	}
	reg.StartFlushLoop(ctx)

	svc := query.NewService(reg, cache, cfg.Redis.CacheTTL, m)
	svc.Register(query.NewWords(words, caseSensitive))
	svc.Register(query.NewTrigrams(grams))

	targets := []consumer.Target{
		{Name: wordindex.Name, Updater: words},
		{Name: trigram.Name, Updater: grams},
	}
	if cfg.Kafka.Enabled {
		kc := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.ContentChanges, consumer.HandleMessage(reg, targets), resilience.RetryConfig{})
		ic := consumer.New(kc)
		go func() {
			if err := ic.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("content consumer stopped", "error", err)
				stop()
			}
		}()
		slog.Info("consuming content changes",
			"topic", cfg.Kafka.Topics.ContentChanges,
			"group", cfg.Kafka.ConsumerGroup,
		)
	}

	checker.Register("indexes", api.IndexCheck(reg))

	mux := http.NewServeMux()
	api.New(reg, svc).WithIngest(func(ctx context.Context, event consumer.ContentEvent) error {
		return consumer.Apply(ctx, reg, targets, event)
	}).Routes(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.RequestTimeout)(chain)
	if m != nil {
		chain = middleware.Metrics(m)(chain)
	}
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

	slog.Info("index service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving http: %w", err)
	}
	return nil
}
