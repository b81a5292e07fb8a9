// Package model supplies the deterministic topic-model functions the server
// consumes: anchor selection over the cooccurrence matrix and topic
// recovery for a given anchor set. Both are pure functions of the dataset
// and their arguments, which is what makes the caching layers sound.
package model

import (
	"math"
	"sort"

	"github.com/itmlab/anchorserve/internal/corpus"
)

// SelectAnchors picks numAnchors single-term anchors from the numCandidates
// most frequent terms using greedy Gram-Schmidt selection over the
// row-normalized cooccurrence matrix: each pick is the candidate farthest
// from the span of the anchors chosen so far.
func SelectAnchors(ds *corpus.Dataset, numAnchors, numCandidates int) [][]int {
	v := ds.VocabSize()
	if numCandidates > v {
		numCandidates = v
	}
	if numAnchors > numCandidates {
		numAnchors = numCandidates
	}
	if numAnchors < 1 {
		return [][]int{}
	}

	candidates := topByDocFreq(ds, numCandidates)
	rows := make([][]float64, len(candidates))
	for i, idx := range candidates {
		rows[i] = normalizeRow(ds.Q[idx])
	}

	// Residuals start as the rows themselves; after each pick the chosen
	// direction is projected out of every remaining candidate.
	residuals := make([][]float64, len(rows))
	for i, row := range rows {
		residuals[i] = append([]float64(nil), row...)
	}

	anchors := make([][]int, 0, numAnchors)
	chosen := make(map[int]struct{}, numAnchors)
	for len(anchors) < numAnchors {
		best, bestNorm := -1, 0.0
		for i := range residuals {
			if _, taken := chosen[i]; taken {
				continue
			}
			if n := norm(residuals[i]); n > bestNorm {
				best, bestNorm = i, n
			}
		}
		if best < 0 || bestNorm == 0 {
			break
		}
		chosen[best] = struct{}{}
		anchors = append(anchors, []int{candidates[best]})

		basis := scale(residuals[best], 1/bestNorm)
		for i := range residuals {
			if _, taken := chosen[i]; taken {
				continue
			}
			p := dot(residuals[i], basis)
			for j := range residuals[i] {
				residuals[i][j] -= p * basis[j]
			}
		}
	}
	return anchors
}

// RecoverTopics returns a term-by-topic weight matrix (vocab size rows, one
// column per anchor group). Each term's topic weights are its normalized
// cooccurrence affinities to the anchor rows; columns are normalized to sum
// to one. Deterministic for fixed inputs.
func RecoverTopics(ds *corpus.Dataset, anchors [][]int) [][]float64 {
	v := ds.VocabSize()
	k := len(anchors)
	topics := make([][]float64, v)
	for i := range topics {
		topics[i] = make([]float64, k)
	}
	if k == 0 || v == 0 {
		return topics
	}

	anchorRows := make([][]float64, k)
	for t, group := range anchors {
		anchorRows[t] = groupRow(ds, group)
	}

	for i := 0; i < v; i++ {
		row := normalizeRow(ds.Q[i])
		for t := 0; t < k; t++ {
			topics[i][t] = dot(row, anchorRows[t])
		}
	}

	for t := 0; t < k; t++ {
		var sum float64
		for i := 0; i < v; i++ {
			sum += topics[i][t]
		}
		if sum == 0 {
			continue
		}
		for i := 0; i < v; i++ {
			topics[i][t] /= sum
		}
	}
	return topics
}

// groupRow averages the normalized cooccurrence rows of a combined anchor.
func groupRow(ds *corpus.Dataset, group []int) []float64 {
	v := ds.VocabSize()
	row := make([]float64, v)
	used := 0
	for _, idx := range group {
		if idx < 0 || idx >= v {
			continue
		}
		for j, val := range normalizeRow(ds.Q[idx]) {
			row[j] += val
		}
		used++
	}
	if used > 1 {
		for j := range row {
			row[j] /= float64(used)
		}
	}
	return row
}

func topByDocFreq(ds *corpus.Dataset, n int) []int {
	idx := make([]int, ds.VocabSize())
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return ds.DocFreq[idx[a]] > ds.DocFreq[idx[b]]
	})
	return idx[:n]
}

func normalizeRow(row []float64) []float64 {
	var sum float64
	for _, v := range row {
		sum += v
	}
	out := make([]float64, len(row))
	if sum == 0 {
		return out
	}
	for i, v := range row {
		out[i] = v / sum
	}
	return out
}

func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

func norm(a []float64) float64 {
	return math.Sqrt(dot(a, a))
}

func scale(a []float64, f float64) []float64 {
	out := make([]float64, len(a))
	for i, v := range a {
		out[i] = v * f
	}
	return out
}
