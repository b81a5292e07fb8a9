// Package topics orchestrates the memoized computation pipeline behind the
// topic API: corpus construction, default anchor selection, anchor
// conversion, and topic recovery, each wrapped in the appropriate cache
// level.
package topics

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/itmlab/anchorserve/internal/anchor"
	"github.com/itmlab/anchorserve/internal/cache/blob"
	"github.com/itmlab/anchorserve/internal/cache/memo"
	"github.com/itmlab/anchorserve/internal/corpus"
	"github.com/itmlab/anchorserve/internal/topics/model"
	"github.com/itmlab/anchorserve/pkg/config"
	"github.com/itmlab/anchorserve/pkg/metrics"
)

// Durable cache entry names. Fixed at definition time: both builders are
// argument-independent, which is the contract the name-keyed cache requires.
const (
	corpusCacheName  = "corpus"
	anchorsCacheName = "anchors-default"
)

// Result is the answer to one topic query. Anchors is populated only when
// the server fell back to the default anchor set, so the caller can learn
// and resubmit them.
type Result struct {
	Topics  [][]string `json:"topics"`
	Anchors [][]string `json:"anchors,omitempty"`
}

// Service composes the cache layers over the topic model. The durable store
// is consulted only on in-process misses, and a durable hit populates the
// in-process level before returning.
type Service struct {
	cfg config.ModelConfig

	dataset        *memo.Value[*corpus.Dataset]
	defaultAnchors *memo.Value[[][]int]
	corpusCache    *blob.Cached[*corpus.Dataset]
	anchorsCache   *blob.Cached[[][]int]
	recovered      *memo.Func1[string, [][]float64]

	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewService wires the two cache levels around the given corpus builder.
// buildCorpus runs at most once per process and at most once per durable
// store lifetime.
func NewService(store blob.Store, buildCorpus func(ctx context.Context) (*corpus.Dataset, error), cfg config.ModelConfig, m *metrics.Metrics) *Service {
	s := &Service{
		cfg:     cfg,
		metrics: m,
		logger:  slog.Default().With("component", "topics"),
	}

	s.corpusCache = blob.NewCached(store, corpusCacheName, buildCorpus)
	s.anchorsCache = blob.NewCached(store, anchorsCacheName, func(ctx context.Context) ([][]int, error) {
		ds, err := s.Dataset(ctx)
		if err != nil {
			return nil, err
		}
		start := time.Now()
		anchors := model.SelectAnchors(ds, cfg.NumAnchors, cfg.AnchorCandidates)
		s.logger.Info("default anchors selected",
			"anchors", len(anchors),
			"elapsed", time.Since(start).Round(time.Millisecond).String(),
		)
		return anchors, nil
	})
	if m != nil {
		s.corpusCache.HitCounter = m.BlobHitsTotal
		s.corpusCache.MissCounter = m.BlobMissesTotal
		s.corpusCache.CorruptionCounter = m.BlobCorruptionsTotal
		s.anchorsCache.HitCounter = m.BlobHitsTotal
		s.anchorsCache.MissCounter = m.BlobMissesTotal
		s.anchorsCache.CorruptionCounter = m.BlobCorruptionsTotal
	}

	// In-process level stacked over the durable level.
	s.dataset = memo.NewValue(s.corpusCache.Get)
	s.defaultAnchors = memo.NewValue(s.anchorsCache.Get)

	s.recovered = memo.NewFunc1(func(sig string) ([][]float64, error) {
		anchors, err := anchor.ParseSignature(sig)
		if err != nil {
			return nil, err
		}
		ds, err := s.Dataset(context.Background())
		if err != nil {
			return nil, err
		}
		start := time.Now()
		topics := model.RecoverTopics(ds, anchors)
		elapsed := time.Since(start)
		if m != nil {
			m.TopicRecoveryLatency.WithLabelValues("miss").Observe(elapsed.Seconds())
		}
		s.logger.Info("topics recovered",
			"anchors", len(anchors),
			"elapsed", elapsed.Round(time.Millisecond).String(),
		)
		return topics, nil
	})
	if m != nil {
		s.recovered.HitCounter = m.MemoHitsTotal.WithLabelValues("recover_topics")
		s.recovered.MissCounter = m.MemoMissesTotal.WithLabelValues("recover_topics")
	}
	return s
}

// Dataset returns the shared dataset, building it on first use.
func (s *Service) Dataset(ctx context.Context) (*corpus.Dataset, error) {
	ds, err := s.dataset.Get(ctx)
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.VocabularySize.Set(float64(ds.VocabSize()))
	}
	return ds, nil
}

// DefaultAnchors returns the cached default anchor set in index form.
func (s *Service) DefaultAnchors(ctx context.Context) ([][]int, error) {
	return s.defaultAnchors.Get(ctx)
}

// BaseAnchors returns the default anchor set in token form for the client.
func (s *Service) BaseAnchors(ctx context.Context) ([][]string, error) {
	ds, err := s.Dataset(ctx)
	if err != nil {
		return nil, err
	}
	anchors, err := s.DefaultAnchors(ctx)
	if err != nil {
		return nil, err
	}
	return anchor.Tokenify(ds, anchors)
}

// Query answers a topic request. groups nil means "use the default anchors";
// the response then echoes the anchors actually used, in token form. The
// second return reports whether recovery was served from the in-process
// cache.
func (s *Service) Query(ctx context.Context, groups []anchor.Group) (*Result, bool, error) {
	ds, err := s.Dataset(ctx)
	if err != nil {
		return nil, false, err
	}

	usedDefaults := groups == nil
	var indexed [][]int
	if usedDefaults {
		indexed, err = s.DefaultAnchors(ctx)
		if err != nil {
			return nil, false, err
		}
	} else {
		indexed, err = anchor.Reindex(ds, groups)
		if err != nil {
			return nil, false, err
		}
	}

	weights, cacheHit, err := s.recovered.Call(anchor.Signature(indexed))
	if err != nil {
		return nil, false, err
	}
	result := &Result{Topics: s.summarize(ds, weights, len(indexed))}
	if usedDefaults {
		tokens, err := anchor.Tokenify(ds, indexed)
		if err != nil {
			return nil, false, err
		}
		result.Anchors = tokens
	}
	return result, cacheHit, nil
}

// summarize reduces the term-by-topic weight matrix to the top summary
// terms per topic, ordered by descending weight. Ties keep vocabulary
// order via the stable sort.
func (s *Service) summarize(ds *corpus.Dataset, weights [][]float64, numTopics int) [][]string {
	n := s.cfg.SummaryTerms
	v := ds.VocabSize()
	if n > v {
		n = v
	}
	summaries := make([][]string, numTopics)
	for k := 0; k < numTopics; k++ {
		order := make([]int, v)
		for i := range order {
			order[i] = i
		}
		sort.SliceStable(order, func(a, b int) bool {
			return weights[order[a]][k] > weights[order[b]][k]
		})
		summary := make([]string, n)
		for i := 0; i < n; i++ {
			summary[i] = ds.Vocab[order[i]]
		}
		summaries[k] = summary
	}
	return summaries
}

// Warm builds the corpus and default anchor set so the first request is
// served from cache. Startup calls this and treats failure as fatal.
func (s *Service) Warm(ctx context.Context) error {
	if _, err := s.Dataset(ctx); err != nil {
		return fmt.Errorf("warming corpus: %w", err)
	}
	if _, err := s.DefaultAnchors(ctx); err != nil {
		return fmt.Errorf("warming default anchors: %w", err)
	}
	return nil
}

// Ready reports whether the dataset has been built in this process.
func (s *Service) Ready() bool {
	return s.dataset.Built()
}

// InvalidateMemo drops the in-process caches. Durable entries are removed
// out of band by deleting the backing storage.
func (s *Service) InvalidateMemo() {
	s.dataset.Reset()
	s.defaultAnchors.Reset()
	s.recovered.Reset()
	s.logger.Info("in-process caches invalidated")
}

// InvalidateDurable deletes the durable cache entries and drops the
// in-process caches so the next use rebuilds from scratch.
func (s *Service) InvalidateDurable(ctx context.Context) error {
	if err := s.corpusCache.Invalidate(ctx); err != nil {
		return err
	}
	if err := s.anchorsCache.Invalidate(ctx); err != nil {
		return err
	}
	s.InvalidateMemo()
	return nil
}

// CacheStats aggregates counters from every cache layer.
func (s *Service) CacheStats() map[string]any {
	memoHits, memoMisses := s.recovered.Stats()
	corpusHits, corpusMisses, corpusRebuilt := s.corpusCache.Stats()
	anchorHits, anchorMisses, anchorRebuilt := s.anchorsCache.Stats()
	return map[string]any{
		"memo": map[string]any{
			"recover_topics": map[string]int64{
				"hits":    memoHits,
				"misses":  memoMisses,
				"entries": int64(s.recovered.Len()),
			},
		},
		"durable": map[string]any{
			corpusCacheName: map[string]int64{
				"hits":            corpusHits,
				"misses":          corpusMisses,
				"corrupt_rebuilt": corpusRebuilt,
			},
			anchorsCacheName: map[string]int64{
				"hits":            anchorHits,
				"misses":          anchorMisses,
				"corrupt_rebuilt": anchorRebuilt,
			},
		},
	}
}
