// Package corpus builds the immutable dataset the topic model runs over: a
// fixed vocabulary, a term-cooccurrence matrix indexed consistently with it,
// and derived statistics. A dataset is built once per pipeline configuration
// and shared read-only by all requests.
package corpus

import (
	"sync"
)

// Document is a single tokenized source document.
type Document struct {
	Name   string   `json:"name"`
	Tokens []string `json:"tokens"`
}

// Dataset is the immutable output of a corpus build. It serializes to JSON
// for the durable cache; the term index is rebuilt lazily after decoding.
type Dataset struct {
	Vocab   []string    `json:"vocab"`
	Q       [][]float64 `json:"q"`
	DocFreq []int       `json:"doc_freq"`
	NumDocs int         `json:"num_docs"`

	once  sync.Once
	index map[string]int
}

// VocabSize returns the number of distinct terms.
func (d *Dataset) VocabSize() int {
	return len(d.Vocab)
}

// TermIndex returns the vocabulary position of term.
func (d *Dataset) TermIndex(term string) (int, bool) {
	d.once.Do(d.buildIndex)
	idx, ok := d.index[term]
	return idx, ok
}

// Term returns the term at the given vocabulary position.
func (d *Dataset) Term(index int) (string, bool) {
	if index < 0 || index >= len(d.Vocab) {
		return "", false
	}
	return d.Vocab[index], true
}

// Cooccurrences returns the term-cooccurrence matrix. Callers must treat it
// as read-only.
func (d *Dataset) Cooccurrences() [][]float64 {
	return d.Q
}

func (d *Dataset) buildIndex() {
	d.index = make(map[string]int, len(d.Vocab))
	for i, term := range d.Vocab {
		d.index[term] = i
	}
}
