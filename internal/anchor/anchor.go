// Package anchor models topic anchors and converts them between their
// client-facing form (tokens or vocabulary indices) and the index form the
// topic model operates on.
package anchor

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/itmlab/anchorserve/pkg/errors"
)

// Vocab resolves terms to vocabulary positions and back. corpus.Dataset
// implements it.
type Vocab interface {
	TermIndex(term string) (int, bool)
	Term(index int) (string, bool)
}

// Anchor is a tagged variant: either a term or an already-resolved
// vocabulary index. On the wire it is a bare JSON string or number.
type Anchor struct {
	term    string
	index   int
	isIndex bool
}

// Term creates a term-form anchor.
func Term(t string) Anchor {
	return Anchor{term: t}
}

// Index creates an index-form anchor.
func Index(i int) Anchor {
	return Anchor{index: i, isIndex: true}
}

func (a Anchor) String() string {
	if a.isIndex {
		return strconv.Itoa(a.index)
	}
	return a.term
}

// MarshalJSON emits a number for index anchors and a string for term anchors.
func (a Anchor) MarshalJSON() ([]byte, error) {
	if a.isIndex {
		return json.Marshal(a.index)
	}
	return json.Marshal(a.term)
}

// UnmarshalJSON accepts a JSON string or number.
func (a *Anchor) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*a = Term(s)
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		*a = Index(n)
		return nil
	}
	return fmt.Errorf("%w: anchor must be a term or an index, got %s", errors.ErrInvalidInput, data)
}

// Group is an ordered set of anchors combined into a single topic seed.
type Group []Anchor

// ParseGroups decodes the client anchor specification. The outer value is a
// JSON array whose elements are either groups (arrays) or single anchors,
// which are lifted into one-element groups. Group structure is preserved.
func ParseGroups(raw string) ([]Group, error) {
	var outer []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &outer); err != nil {
		return nil, fmt.Errorf("%w: anchors must be a JSON array: %v", errors.ErrInvalidInput, err)
	}
	groups := make([]Group, 0, len(outer))
	for _, elem := range outer {
		trimmed := strings.TrimSpace(string(elem))
		if strings.HasPrefix(trimmed, "[") {
			var g Group
			if err := json.Unmarshal(elem, &g); err != nil {
				return nil, err
			}
			if len(g) == 0 {
				return nil, fmt.Errorf("%w: anchor group must not be empty", errors.ErrInvalidInput)
			}
			groups = append(groups, g)
			continue
		}
		var a Anchor
		if err := json.Unmarshal(elem, &a); err != nil {
			return nil, err
		}
		groups = append(groups, Group{a})
	}
	return groups, nil
}

// Reindex converts every anchor to its vocabulary index, preserving group
// structure. Index anchors pass through unchanged; a term absent from the
// vocabulary fails with ErrUnknownTerm.
func Reindex(vocab Vocab, groups []Group) ([][]int, error) {
	indexed := make([][]int, len(groups))
	for gi, group := range groups {
		if len(group) == 0 {
			return nil, fmt.Errorf("%w: anchor group %d is empty", errors.ErrInvalidInput, gi)
		}
		indexed[gi] = make([]int, len(group))
		for ai, a := range group {
			if a.isIndex {
				indexed[gi][ai] = a.index
				continue
			}
			idx, ok := vocab.TermIndex(a.term)
			if !ok {
				return nil, fmt.Errorf("%w: %q", errors.ErrUnknownTerm, a.term)
			}
			indexed[gi][ai] = idx
		}
	}
	return indexed, nil
}

// Tokenify converts index-form anchor groups back to token form by indexing
// the vocabulary. It is used only when the server chose the anchors, so an
// out-of-range index is a programming error and reported as such.
func Tokenify(vocab Vocab, groups [][]int) ([][]string, error) {
	tokens := make([][]string, len(groups))
	for gi, group := range groups {
		tokens[gi] = make([]string, len(group))
		for ai, idx := range group {
			term, ok := vocab.Term(idx)
			if !ok {
				return nil, fmt.Errorf("%w: anchor index %d out of vocabulary range", errors.ErrInternal, idx)
			}
			tokens[gi][ai] = term
		}
	}
	return tokens, nil
}

// ParseSignature is the inverse of Signature.
func ParseSignature(sig string) ([][]int, error) {
	if sig == "" {
		return [][]int{}, nil
	}
	groupParts := strings.Split(sig, ";")
	groups := make([][]int, len(groupParts))
	for gi, gp := range groupParts {
		if gp == "" {
			return nil, fmt.Errorf("%w: bad anchor signature %q", errors.ErrInvalidInput, sig)
		}
		idxParts := strings.Split(gp, ",")
		groups[gi] = make([]int, len(idxParts))
		for ai, ip := range idxParts {
			idx, err := strconv.Atoi(ip)
			if err != nil {
				return nil, fmt.Errorf("%w: bad anchor signature %q", errors.ErrInvalidInput, sig)
			}
			groups[gi][ai] = idx
		}
	}
	return groups, nil
}

// Signature renders index-form anchor groups as a canonical string for use
// as a memoization key. Order is significant and preserved. Groups are
// non-empty (Reindex rejects empty ones), so the empty string denotes only
// the empty anchor set and ParseSignature inverts Signature exactly.
func Signature(groups [][]int) string {
	var b strings.Builder
	for gi, group := range groups {
		if gi > 0 {
			b.WriteByte(';')
		}
		for ai, idx := range group {
			if ai > 0 {
				b.WriteByte(',')
			}
			b.WriteString(strconv.Itoa(idx))
		}
	}
	return b.String()
}
