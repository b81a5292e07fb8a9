package corpus

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/itmlab/anchorserve/internal/corpus/tokenize"
	pkgerrors "github.com/itmlab/anchorserve/pkg/errors"
)

func testDocs() []Document {
	return []Document{
		{Name: "d1", Tokens: []string{"dog", "cat", "the", "dog"}},
		{Name: "d2", Tokens: []string{"cat", "fish", "the"}},
		{Name: "d3", Tokens: []string{"dog", "fish", "bird"}},
	}
}

func TestBuildDerivesVocabInFirstOccurrenceOrder(t *testing.T) {
	ds, err := Build(context.Background(), FromDocuments(testDocs()))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	want := []string{"dog", "cat", "the", "fish", "bird"}
	if !reflect.DeepEqual(ds.Vocab, want) {
		t.Errorf("vocab %v, want %v", ds.Vocab, want)
	}
	if ds.NumDocs != 3 {
		t.Errorf("NumDocs = %d, want 3", ds.NumDocs)
	}
}

func TestBuildCooccurrenceShape(t *testing.T) {
	ds, err := Build(context.Background(), FromDocuments(testDocs()))
	if err != nil {
		t.Fatal(err)
	}
	v := ds.VocabSize()
	if len(ds.Q) != v {
		t.Fatalf("Q has %d rows for %d terms", len(ds.Q), v)
	}
	for i, row := range ds.Q {
		if len(row) != v {
			t.Fatalf("Q row %d has %d columns", i, len(row))
		}
	}
	// Terms that never share a document must not cooccur.
	dog, _ := ds.TermIndex("dog")
	if the, _ := ds.TermIndex("the"); ds.Q[dog][the] == 0 {
		t.Error("dog and the share d1 but Q entry is zero")
	}
	// Q is symmetric for distinct terms by construction.
	cat, _ := ds.TermIndex("cat")
	if ds.Q[dog][cat] != ds.Q[cat][dog] {
		t.Error("Q not symmetric")
	}
}

func TestBuildDeterministic(t *testing.T) {
	a, err := Build(context.Background(), FromDocuments(testDocs()))
	if err != nil {
		t.Fatal(err)
	}
	b, err := Build(context.Background(), FromDocuments(testDocs()))
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(a.Vocab, b.Vocab) || !reflect.DeepEqual(a.Q, b.Q) {
		t.Error("identical inputs produced different datasets")
	}
}

func TestFilterStopwords(t *testing.T) {
	dir := t.TempDir()
	stopPath := filepath.Join(dir, "stop.txt")
	if err := os.WriteFile(stopPath, []byte("the\na\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	ds, err := Build(context.Background(), FromDocuments(testDocs()), FilterStopwords(stopPath))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := ds.TermIndex("the"); ok {
		t.Error("stopword survived the filter")
	}
	if _, ok := ds.TermIndex("dog"); !ok {
		t.Error("non-stopword was dropped")
	}
}

func TestFilterStopwordsMissingFile(t *testing.T) {
	_, err := Build(context.Background(), FromDocuments(testDocs()),
		FilterStopwords(filepath.Join(t.TempDir(), "absent.txt")))
	if !errors.Is(err, pkgerrors.ErrSourceRead) {
		t.Errorf("expected ErrSourceRead, got %v", err)
	}
}

func TestCombineWords(t *testing.T) {
	dir := t.TempDir()
	namePath := filepath.Join(dir, "names.txt")
	if err := os.WriteFile(namePath, []byte("dog\ncat\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	ds, err := Build(context.Background(), FromDocuments(testDocs()), CombineWords(namePath, "<name>"))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := ds.TermIndex("<name>"); !ok {
		t.Error("replacement token missing from vocabulary")
	}
	if _, ok := ds.TermIndex("dog"); ok {
		t.Error("combined word still in vocabulary")
	}
}

func TestFilterRareAndCommonWords(t *testing.T) {
	ds, err := Build(context.Background(), FromDocuments(testDocs()),
		FilterRarewords(2),   // drops bird (1 doc)
		FilterCommonwords(2), // drops nothing further: the appears in 2 docs
	)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := ds.TermIndex("bird"); ok {
		t.Error("rare word survived")
	}
	if _, ok := ds.TermIndex("dog"); !ok {
		t.Error("dog should survive both filters")
	}

	ds, err = Build(context.Background(), FromDocuments(testDocs()), FilterCommonwords(1))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := ds.TermIndex("cat"); ok {
		t.Error("common word survived FilterCommonwords(1)")
	}
	if _, ok := ds.TermIndex("bird"); !ok {
		t.Error("single-document word should survive FilterCommonwords(1)")
	}
}

func TestReadGlob(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"a.txt": "Subject: greetings\n\nHello dog world",
		"b.txt": "Subject: more\n\nCat and fish",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	source := ReadGlob(filepath.Join(dir, "*.txt"), tokenize.News(tokenize.Simple(tokenize.Split)))
	docs, err := source(context.Background())
	if err != nil {
		t.Fatalf("ReadGlob: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("read %d documents, want 2", len(docs))
	}
	// Paths are sorted, so a.txt comes first.
	if !reflect.DeepEqual(docs[0].Tokens, []string{"hello", "dog", "world"}) {
		t.Errorf("a.txt tokens %v", docs[0].Tokens)
	}
}

func TestReadGlobNoMatches(t *testing.T) {
	source := ReadGlob(filepath.Join(t.TempDir(), "*.txt"), tokenize.Simple(tokenize.Split))
	if _, err := source(context.Background()); !errors.Is(err, pkgerrors.ErrSourceRead) {
		t.Errorf("expected ErrSourceRead, got %v", err)
	}
}

func TestBuildEmptyVocabularyFails(t *testing.T) {
	docs := []Document{{Name: "d", Tokens: []string{}}}
	if _, err := Build(context.Background(), FromDocuments(docs)); err == nil {
		t.Fatal("expected error for empty vocabulary")
	}
}

func TestDatasetJSONRoundTrip(t *testing.T) {
	ds, err := Build(context.Background(), FromDocuments(testDocs()))
	if err != nil {
		t.Fatal(err)
	}
	data, err := json.Marshal(ds)
	if err != nil {
		t.Fatal(err)
	}
	var back Dataset
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	// The lazily-built term index must work after decoding.
	idx, ok := back.TermIndex("fish")
	if !ok {
		t.Fatal("fish missing after decode")
	}
	if term, _ := back.Term(idx); term != "fish" {
		t.Errorf("index round trip gave %q", term)
	}
	if !reflect.DeepEqual(back.Q, ds.Q) {
		t.Error("cooccurrence matrix changed across serialization")
	}
}
