// Command warmcache builds the corpus and default anchor caches offline so
// the server process starts warm. Run it after changing the corpus
// configuration, or delete the cache entries first to force a rebuild.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/itmlab/anchorserve/internal/cache/blob"
	"github.com/itmlab/anchorserve/internal/corpus"
	"github.com/itmlab/anchorserve/internal/topics"
	"github.com/itmlab/anchorserve/pkg/config"
	"github.com/itmlab/anchorserve/pkg/logger"
	pkgredis "github.com/itmlab/anchorserve/pkg/redis"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	invalidate := flag.Bool("invalidate", false, "delete durable cache entries before building")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, "text")

	var store blob.Store
	switch cfg.Cache.Backend {
	case "redis":
		client, err := pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Error("redis unavailable", "error", err)
			os.Exit(1)
		}
		defer client.Close()
		store = blob.NewRedisStore(client)
	default:
		fs, err := blob.NewFileStore(cfg.Cache.Dir)
		if err != nil {
			slog.Error("cache directory unavailable", "error", err)
			os.Exit(1)
		}
		store = fs
	}

	buildCorpus, err := corpus.Builder(cfg.Corpus)
	if err != nil {
		slog.Error("invalid corpus configuration", "error", err)
		os.Exit(1)
	}

	svc := topics.NewService(store, buildCorpus, cfg.Model, nil)
	ctx := context.Background()

	if *invalidate {
		if err := svc.InvalidateDurable(ctx); err != nil {
			slog.Error("failed to invalidate durable cache", "error", err)
			os.Exit(1)
		}
		slog.Info("durable cache entries deleted")
	}

	if err := svc.Warm(ctx); err != nil {
		slog.Error("cache warm failed", "error", err)
		os.Exit(1)
	}

	ds, err := svc.Dataset(ctx)
	if err != nil {
		slog.Error("dataset unavailable after warm", "error", err)
		os.Exit(1)
	}
	anchors, err := svc.BaseAnchors(ctx)
	if err != nil {
		slog.Error("anchors unavailable after warm", "error", err)
		os.Exit(1)
	}
	slog.Info("caches warm",
		"documents", ds.NumDocs,
		"vocabulary", ds.VocabSize(),
		"anchors", len(anchors),
	)
}
