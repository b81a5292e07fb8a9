// Package benchmark contains Go benchmarks for the tokenizer pipeline,
// corpus construction, and topic recovery, measuring throughput and
// allocation behaviour.
package benchmark

import (
	"context"
	"fmt"
	"testing"

	"github.com/itmlab/anchorserve/internal/corpus"
	"github.com/itmlab/anchorserve/internal/topics/model"
)

// syntheticDocs builds a deterministic corpus of numDocs documents over a
// vocabulary of vocabSize terms.
func syntheticDocs(numDocs, vocabSize int) []corpus.Document {
	docs := make([]corpus.Document, numDocs)
	for d := 0; d < numDocs; d++ {
		tokens := make([]string, 0, 30)
		for i := 0; i < 30; i++ {
			tokens = append(tokens, fmt.Sprintf("term%d", (d*7+i*3)%vocabSize))
		}
		docs[d] = corpus.Document{Name: fmt.Sprintf("doc-%d", d), Tokens: tokens}
	}
	return docs
}

func buildDataset(b *testing.B, numDocs, vocabSize int) *corpus.Dataset {
	b.Helper()
	ds, err := corpus.Build(context.Background(), corpus.FromDocuments(syntheticDocs(numDocs, vocabSize)))
	if err != nil {
		b.Fatal(err)
	}
	return ds
}

// BenchmarkCorpusBuild measures cooccurrence matrix construction over
// increasing vocabulary sizes.
func BenchmarkCorpusBuild(b *testing.B) {
	for _, vocabSize := range []int{50, 100, 200} {
		docs := syntheticDocs(500, vocabSize)
		b.Run(fmt.Sprintf("vocab_%d", vocabSize), func(b *testing.B) {
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				ds, err := corpus.Build(context.Background(), corpus.FromDocuments(docs))
				if err != nil {
					b.Fatal(err)
				}
				_ = ds
			}
		})
	}
}

// BenchmarkSelectAnchors measures greedy anchor selection latency.
func BenchmarkSelectAnchors(b *testing.B) {
	ds := buildDataset(b, 500, 200)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		anchors := model.SelectAnchors(ds, 20, 200)
		_ = anchors
	}
}

// BenchmarkRecoverTopics measures one uncached topic recovery.
func BenchmarkRecoverTopics(b *testing.B) {
	ds := buildDataset(b, 500, 200)
	anchors := model.SelectAnchors(ds, 20, 200)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		topics := model.RecoverTopics(ds, anchors)
		_ = topics
	}
}

// BenchmarkRecoverTopicsParallel measures concurrent recovery throughput over
// a shared dataset.
func BenchmarkRecoverTopicsParallel(b *testing.B) {
	ds := buildDataset(b, 500, 100)
	anchors := model.SelectAnchors(ds, 10, 100)
	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			topics := model.RecoverTopics(ds, anchors)
			_ = topics
		}
	})
}
