package corpus

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/itmlab/anchorserve/internal/corpus/tokenize"
	"github.com/itmlab/anchorserve/pkg/errors"
	"github.com/itmlab/anchorserve/pkg/logger"
)

// Source produces the initial document set for a pipeline.
type Source func(ctx context.Context) ([]Document, error)

// Stage transforms the document set. Stages run in order after the source.
type Stage func(docs []Document) ([]Document, error)

// ReadGlob returns a Source that tokenizes every file matching pattern with
// tok. An unreadable document is logged with its identity and skipped; a
// pattern matching nothing is an error since the model cannot run over an
// empty corpus.
func ReadGlob(pattern string, tok tokenize.Tokenizer) Source {
	return func(ctx context.Context) ([]Document, error) {
		paths, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("bad document glob %q: %w", pattern, err)
		}
		if len(paths) == 0 {
			return nil, fmt.Errorf("%w: no documents match %q", errors.ErrSourceRead, pattern)
		}
		sort.Strings(paths)

		log := logger.WithComponent("corpus")
		docs := make([]Document, 0, len(paths))
		for _, path := range paths {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			f, err := os.Open(path)
			if err != nil {
				log.Error("skipping unreadable document", "source", path, "error", err)
				continue
			}
			tokens, err := tok(f)
			f.Close()
			if err != nil {
				log.Error("skipping untokenizable document", "source", path, "error", err)
				continue
			}
			docs = append(docs, Document{Name: path, Tokens: tokens})
		}
		if len(docs) == 0 {
			return nil, fmt.Errorf("%w: no readable documents under %q", errors.ErrSourceRead, pattern)
		}
		return docs, nil
	}
}

// FromDocuments returns a Source over an in-memory document set. Used by
// tests and by callers that ingest documents themselves.
func FromDocuments(docs []Document) Source {
	return func(ctx context.Context) ([]Document, error) {
		return docs, nil
	}
}

// FilterStopwords returns a Stage that removes every token listed in the
// given word files.
func FilterStopwords(paths ...string) Stage {
	return func(docs []Document) ([]Document, error) {
		stop, err := loadWordLists(paths)
		if err != nil {
			return nil, err
		}
		return filterTokens(docs, func(tok string) (string, bool) {
			_, stopped := stop[tok]
			return tok, !stopped
		}), nil
	}
}

// CombineWords returns a Stage that collapses every token listed in the word
// file into a single replacement token, preserving position.
func CombineWords(path, replacement string) Stage {
	return func(docs []Document) ([]Document, error) {
		words, err := loadWordLists([]string{path})
		if err != nil {
			return nil, err
		}
		return filterTokens(docs, func(tok string) (string, bool) {
			if _, ok := words[tok]; ok {
				return replacement, true
			}
			return tok, true
		}), nil
	}
}

// FilterRarewords returns a Stage that removes terms appearing in fewer than
// n documents.
func FilterRarewords(n int) Stage {
	return func(docs []Document) ([]Document, error) {
		df := documentFrequencies(docs)
		return filterTokens(docs, func(tok string) (string, bool) {
			return tok, df[tok] >= n
		}), nil
	}
}

// FilterCommonwords returns a Stage that removes terms appearing in more
// than n documents.
func FilterCommonwords(n int) Stage {
	return func(docs []Document) ([]Document, error) {
		df := documentFrequencies(docs)
		return filterTokens(docs, func(tok string) (string, bool) {
			return tok, df[tok] <= n
		}), nil
	}
}

// Build runs the source and stages, then derives the vocabulary and
// cooccurrence statistics. A build failure leaves nothing cached anywhere;
// callers treat a startup failure as fatal.
func Build(ctx context.Context, source Source, stages ...Stage) (*Dataset, error) {
	start := time.Now()
	docs, err := source(ctx)
	if err != nil {
		return nil, fmt.Errorf("corpus source: %w", err)
	}
	for i, stage := range stages {
		docs, err = stage(docs)
		if err != nil {
			return nil, fmt.Errorf("corpus pipeline stage %d: %w", i, err)
		}
	}

	ds := derive(docs)
	if ds.VocabSize() == 0 {
		return nil, fmt.Errorf("%w: pipeline produced an empty vocabulary", errors.ErrCorpusUnbuilt)
	}
	logger.WithComponent("corpus").Info("corpus built",
		"documents", ds.NumDocs,
		"vocabulary", ds.VocabSize(),
		"elapsed", time.Since(start).Round(time.Millisecond).String(),
	)
	return ds, nil
}

// derive computes the vocabulary (first-occurrence order, so builds are
// deterministic for a fixed document order) and the normalized cooccurrence
// matrix Q.
func derive(docs []Document) *Dataset {
	index := make(map[string]int)
	vocab := make([]string, 0)
	for _, doc := range docs {
		for _, tok := range doc.Tokens {
			if _, ok := index[tok]; !ok {
				index[tok] = len(vocab)
				vocab = append(vocab, tok)
			}
		}
	}

	v := len(vocab)
	q := make([][]float64, v)
	for i := range q {
		q[i] = make([]float64, v)
	}
	df := make([]int, v)

	counted := 0
	for _, doc := range docs {
		counts := make(map[int]float64, len(doc.Tokens))
		for _, tok := range doc.Tokens {
			counts[index[tok]]++
		}
		for idx := range counts {
			df[idx]++
		}
		n := float64(len(doc.Tokens))
		if n < 2 {
			continue
		}
		// Per-document contribution to the joint term distribution,
		// normalized so every document carries equal weight.
		norm := n * (n - 1)
		for i, ci := range counts {
			for j, cj := range counts {
				if i == j {
					q[i][j] += ci * (ci - 1) / norm
				} else {
					q[i][j] += ci * cj / norm
				}
			}
		}
		counted++
	}
	if counted > 0 {
		for i := range q {
			for j := range q[i] {
				q[i][j] /= float64(counted)
			}
		}
	}

	return &Dataset{
		Vocab:   vocab,
		Q:       q,
		DocFreq: df,
		NumDocs: len(docs),
	}
}

func documentFrequencies(docs []Document) map[string]int {
	df := make(map[string]int)
	for _, doc := range docs {
		seen := make(map[string]struct{}, len(doc.Tokens))
		for _, tok := range doc.Tokens {
			if _, ok := seen[tok]; !ok {
				seen[tok] = struct{}{}
				df[tok]++
			}
		}
	}
	return df
}

func filterTokens(docs []Document, keep func(tok string) (string, bool)) []Document {
	out := make([]Document, len(docs))
	for di, doc := range docs {
		tokens := make([]string, 0, len(doc.Tokens))
		for _, tok := range doc.Tokens {
			if mapped, ok := keep(tok); ok {
				tokens = append(tokens, mapped)
			}
		}
		out[di] = Document{Name: doc.Name, Tokens: tokens}
	}
	return out
}

func loadWordLists(paths []string) (map[string]struct{}, error) {
	words := make(map[string]struct{})
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("%w: word list %s: %v", errors.ErrSourceRead, path, err)
		}
		tokens, err := tokenize.Split(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("%w: word list %s: %v", errors.ErrSourceRead, path, err)
		}
		for _, tok := range tokens {
			words[tok] = struct{}{}
		}
	}
	return words, nil
}
