package model

import (
	"context"
	"math"
	"reflect"
	"testing"

	"github.com/itmlab/anchorserve/internal/corpus"
)

func testDataset(t *testing.T) *corpus.Dataset {
	t.Helper()
	docs := []corpus.Document{
		{Name: "d1", Tokens: []string{"dog", "cat", "dog", "bone"}},
		{Name: "d2", Tokens: []string{"cat", "fish", "bowl"}},
		{Name: "d3", Tokens: []string{"dog", "bone", "park"}},
		{Name: "d4", Tokens: []string{"fish", "bowl", "water"}},
	}
	ds, err := corpus.Build(context.Background(), corpus.FromDocuments(docs))
	if err != nil {
		t.Fatalf("building test dataset: %v", err)
	}
	return ds
}

func TestSelectAnchorsCountAndUniqueness(t *testing.T) {
	ds := testDataset(t)
	anchors := SelectAnchors(ds, 3, ds.VocabSize())
	if len(anchors) != 3 {
		t.Fatalf("selected %d anchors, want 3", len(anchors))
	}
	seen := make(map[int]struct{})
	for _, group := range anchors {
		if len(group) != 1 {
			t.Fatalf("default anchors should be single terms, got %v", group)
		}
		if _, dup := seen[group[0]]; dup {
			t.Fatalf("anchor %d selected twice", group[0])
		}
		seen[group[0]] = struct{}{}
		if group[0] < 0 || group[0] >= ds.VocabSize() {
			t.Fatalf("anchor index %d out of range", group[0])
		}
	}
}

func TestSelectAnchorsDeterministic(t *testing.T) {
	ds := testDataset(t)
	a := SelectAnchors(ds, 3, ds.VocabSize())
	b := SelectAnchors(ds, 3, ds.VocabSize())
	if !reflect.DeepEqual(a, b) {
		t.Errorf("selection not deterministic: %v vs %v", a, b)
	}
}

func TestSelectAnchorsClampsToVocabulary(t *testing.T) {
	ds := testDataset(t)
	anchors := SelectAnchors(ds, 100, 1000)
	if len(anchors) > ds.VocabSize() {
		t.Errorf("selected %d anchors from %d terms", len(anchors), ds.VocabSize())
	}
}

func TestRecoverTopicsShape(t *testing.T) {
	ds := testDataset(t)
	dog, _ := ds.TermIndex("dog")
	fish, _ := ds.TermIndex("fish")
	topics := RecoverTopics(ds, [][]int{{dog}, {fish}})

	if len(topics) != ds.VocabSize() {
		t.Fatalf("topics has %d rows for %d terms", len(topics), ds.VocabSize())
	}
	for i, row := range topics {
		if len(row) != 2 {
			t.Fatalf("row %d has %d topics, want 2", i, len(row))
		}
	}
	// Columns are normalized distributions.
	for k := 0; k < 2; k++ {
		var sum float64
		for i := range topics {
			if topics[i][k] < 0 {
				t.Fatalf("negative weight at (%d,%d)", i, k)
			}
			sum += topics[i][k]
		}
		if math.Abs(sum-1) > 1e-9 {
			t.Errorf("topic %d weights sum to %v, want 1", k, sum)
		}
	}
}

func TestRecoverTopicsDeterministic(t *testing.T) {
	ds := testDataset(t)
	anchors := [][]int{{0}, {1}}
	a := RecoverTopics(ds, anchors)
	b := RecoverTopics(ds, anchors)
	if !reflect.DeepEqual(a, b) {
		t.Error("recovery not deterministic")
	}
}

func TestRecoverTopicsCombinedAnchor(t *testing.T) {
	ds := testDataset(t)
	dog, _ := ds.TermIndex("dog")
	bone, _ := ds.TermIndex("bone")
	topics := RecoverTopics(ds, [][]int{{dog, bone}})
	if len(topics) != ds.VocabSize() {
		t.Fatalf("unexpected row count %d", len(topics))
	}
	for i := range topics {
		if len(topics[i]) != 1 {
			t.Fatalf("combined anchor should yield one topic, got %d", len(topics[i]))
		}
	}
}

func TestRecoverTopicsNoAnchors(t *testing.T) {
	ds := testDataset(t)
	topics := RecoverTopics(ds, [][]int{})
	for i := range topics {
		if len(topics[i]) != 0 {
			t.Fatal("no anchors should yield no topic columns")
		}
	}
}
