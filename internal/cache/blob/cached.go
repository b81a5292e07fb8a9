package blob

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"

	stderrors "errors"

	"github.com/itmlab/anchorserve/pkg/errors"
)

// Counter is the subset of prometheus.Counter Cached needs. Nil counters are
// ignored.
type Counter interface{ Inc() }

// Cached wraps a zero-argument builder with a durable named cache entry. The
// key is the name fixed at construction, not the call, so it must only wrap
// builders whose output is argument-independent.
type Cached[T any] struct {
	store  Store
	name   string
	build  func(ctx context.Context) (T, error)
	logger *slog.Logger

	hits    atomic.Int64
	misses  atomic.Int64
	rebuilt atomic.Int64

	HitCounter        Counter
	MissCounter       Counter
	CorruptionCounter Counter
}

// NewCached associates build with the given storage name.
func NewCached[T any](store Store, name string, build func(ctx context.Context) (T, error)) *Cached[T] {
	return &Cached[T]{
		store:  store,
		name:   name,
		build:  build,
		logger: slog.Default().With("component", "blob-cache", "name", name),
	}
}

// Get returns the cached value, deserializing from durable storage when
// possible and rebuilding otherwise. A corrupt entry triggers exactly one
// rebuild and is overwritten with the fresh result; a failed build writes
// nothing.
func (c *Cached[T]) Get(ctx context.Context) (T, error) {
	var val T
	data, err := c.store.Get(ctx, c.name)
	if err == nil {
		if jsonErr := json.Unmarshal(data, &val); jsonErr == nil {
			c.hits.Add(1)
			if c.HitCounter != nil {
				c.HitCounter.Inc()
			}
			c.logger.Debug("durable cache hit", "bytes", len(data))
			return val, nil
		} else {
			err = fmt.Errorf("%w: %s: %v", errors.ErrCacheCorrupt, c.name, jsonErr)
		}
	}

	switch {
	case stderrors.Is(err, errors.ErrCacheMiss):
		c.misses.Add(1)
		if c.MissCounter != nil {
			c.MissCounter.Inc()
		}
	case stderrors.Is(err, errors.ErrCacheCorrupt):
		c.rebuilt.Add(1)
		if c.CorruptionCounter != nil {
			c.CorruptionCounter.Inc()
		}
		c.logger.Warn("durable cache entry corrupt, rebuilding", "error", err)
	default:
		// Storage itself failed (unreadable dir, redis down). Recompute
		// rather than serve nothing, but say why.
		c.misses.Add(1)
		if c.MissCounter != nil {
			c.MissCounter.Inc()
		}
		c.logger.Error("durable cache read failed, rebuilding", "error", err)
	}

	built, buildErr := c.build(ctx)
	if buildErr != nil {
		var zero T
		return zero, buildErr
	}

	payload, marshalErr := json.Marshal(built)
	if marshalErr != nil {
		c.logger.Error("failed to serialize cache entry", "error", marshalErr)
		return built, nil
	}
	if putErr := c.store.Put(ctx, c.name, payload); putErr != nil {
		c.logger.Error("failed to persist cache entry", "error", putErr)
		return built, nil
	}
	c.logger.Info("durable cache entry written", "bytes", len(payload))
	return built, nil
}

// Invalidate deletes the durable entry.
func (c *Cached[T]) Invalidate(ctx context.Context) error {
	return c.store.Delete(ctx, c.name)
}

// Stats returns hit, miss, and corruption-rebuild counts.
func (c *Cached[T]) Stats() (hits, misses, rebuilt int64) {
	return c.hits.Load(), c.misses.Load(), c.rebuilt.Load()
}
