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
	"time"

	"github.com/itmlab/anchorserve/internal/analytics"
	"github.com/itmlab/anchorserve/internal/cache/blob"
	"github.com/itmlab/anchorserve/internal/corpus"
	"github.com/itmlab/anchorserve/internal/server"
	"github.com/itmlab/anchorserve/internal/server/handler"
	"github.com/itmlab/anchorserve/internal/session"
	"github.com/itmlab/anchorserve/internal/topics"
	"github.com/itmlab/anchorserve/pkg/config"
	"github.com/itmlab/anchorserve/pkg/health"
	"github.com/itmlab/anchorserve/pkg/kafka"
	"github.com/itmlab/anchorserve/pkg/logger"
	"github.com/itmlab/anchorserve/pkg/metrics"
	"github.com/itmlab/anchorserve/pkg/postgres"
	pkgredis "github.com/itmlab/anchorserve/pkg/redis"
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
	slog.Info("starting anchorserve",
		"port", cfg.Server.Port,
		"cache_backend", cfg.Cache.Backend,
		"document_glob", cfg.Corpus.DocumentGlob,
	)

	m := metrics.New()

	store, redisClient, err := newBlobStore(cfg)
	if err != nil {
		slog.Error("failed to initialize blob cache", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	buildCorpus, err := corpus.Builder(cfg.Corpus)
	if err != nil {
		slog.Error("invalid corpus configuration", "error", err)
		os.Exit(1)
	}
	instrumented := func(ctx context.Context) (*corpus.Dataset, error) {
		start := time.Now()
		ds, err := buildCorpus(ctx)
		if err != nil {
			return nil, err
		}
		m.CorpusBuildSeconds.Observe(time.Since(start).Seconds())
		m.DocumentsIngested.Add(float64(ds.NumDocs))
		return ds, nil
	}

	svc := topics.NewService(store, instrumented, cfg.Model, m)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The process must not serve traffic with an unbuilt corpus.
	if err := svc.Warm(ctx); err != nil {
		slog.Error("startup corpus build failed", "error", err)
		os.Exit(1)
	}
	slog.Info("caches warm, ready to serve")

	var sessionStore *session.Store
	pgClient, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Warn("postgres unavailable, session capture disabled", "error", err)
	} else {
		defer pgClient.Close()
		sessionStore, err = session.NewStore(ctx, pgClient)
		if err != nil {
			slog.Error("failed to initialize session store", "error", err)
			os.Exit(1)
		}
		slog.Info("session capture enabled", "database", cfg.Postgres.Database)
	}

	var collector *analytics.Collector
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.AnalyticsTopic)
		defer producer.Close()
		collector = analytics.NewCollector(producer, cfg.Kafka.EventBufferSize)
		collector.Start(ctx)
		defer collector.Close()
		slog.Info("analytics collector started", "topic", cfg.Kafka.AnalyticsTopic)
	}

	checker := health.NewChecker()
	checker.Register("corpus", func(ctx context.Context) health.ComponentHealth {
		if svc.Ready() {
			return health.ComponentHealth{Status: health.StatusUp}
		}
		return health.ComponentHealth{Status: health.StatusDown, Message: "corpus not built"}
	})
	checker.Register("blob_cache", func(ctx context.Context) health.ComponentHealth {
		if err := store.Ping(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})
	checker.Register("postgres", func(ctx context.Context) health.ComponentHealth {
		if pgClient == nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "not configured"}
		}
		if err := pgClient.DB.PingContext(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})

	h := handler.New(svc, sessionStore, collector, m)
	chain := server.New(h, checker, server.Options{
		StaticDir:      cfg.Server.StaticDir,
		RequestTimeout: cfg.Server.WriteTimeout,
		Metrics:        m,
	})

	if cfg.Metrics.Enabled {
		go func() {
			addr := fmt.Sprintf(":%d", cfg.Metrics.Port)
			slog.Info("metrics server listening", "addr", addr)
			if err := http.ListenAndServe(addr, metrics.Handler()); err != nil && err != http.ErrServerClosed {
				slog.Error("metrics server error", "error", err)
			}
		}()
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("anchorserve listening", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	// Shutdown must finish draining handlers before the deferred collector
	// and client closes run.
	<-shutdownDone
	slog.Info("anchorserve stopped")
}

// newBlobStore selects the durable cache backend from config.
func newBlobStore(cfg *config.Config) (blob.Store, *pkgredis.Client, error) {
	switch cfg.Cache.Backend {
	case "redis":
		client, err := pkgredis.NewClient(cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		return blob.NewRedisStore(client), client, nil
	default:
		store, err := blob.NewFileStore(cfg.Cache.Dir)
		if err != nil {
			return nil, nil, err
		}
		return store, nil, nil
	}
}
