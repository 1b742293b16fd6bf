package retriever

import (
	"sort"

	"github.com/searchlab/adaptive-retrieval/internal/corpus"
)

// HybridRetriever combines the keyword and vector rankings into one
// ordering. Each engine's scores are normalized to [0,1] within its
// candidate pool before blending, so neither engine dominates due to
// differing scales. The exact blending formula is an implementation choice
// pinned by tests, not an external contract.
type HybridRetriever struct {
	docs     []corpus.Document
	keyword  *KeywordRetriever
	vector   *VectorRetriever
	docIndex map[string]int
}

// BuildHybrid wires the two single-engine retrievers together.
func BuildHybrid(docs []corpus.Document, keyword *KeywordRetriever, vector *VectorRetriever) *HybridRetriever {
	docIndex := make(map[string]int, len(docs))
	for i, d := range docs {
		docIndex[d.DocID] = i
	}
	return &HybridRetriever{docs: docs, keyword: keyword, vector: vector, docIndex: docIndex}
}

// Search requests a 3×k candidate pool (capped at the corpus size) from
// both engines, min–max normalizes each pool's scores, and ranks the union
// by the mean of the available normalized scores. A document present in
// only one pool falls back to that engine's normalized score. Same stable
// top-k truncation and tie-break as the single engines.
func (r *HybridRetriever) Search(query string, k int) []Result {
	if k <= 0 || len(r.docs) == 0 {
		return nil
	}
	pool := 3 * k
	if pool > len(r.docs) {
		pool = len(r.docs)
	}

	kwNorm := normalizePool(r.keyword.Search(query, pool))
	vecNorm := normalizePool(r.vector.Search(query, pool))

	type blend struct {
		sum float64
		n   int
	}
	union := make(map[string]*blend, len(kwNorm)+len(vecNorm))
	for id, s := range kwNorm {
		union[id] = &blend{sum: s, n: 1}
	}
	for id, s := range vecNorm {
		if b, ok := union[id]; ok {
			b.sum += s
			b.n++
		} else {
			union[id] = &blend{sum: s, n: 1}
		}
	}

	candidates := make([]int, 0, len(union))
	combined := make(map[int]float64, len(union))
	for id, b := range union {
		idx := r.docIndex[id]
		candidates = append(candidates, idx)
		combined[idx] = b.sum / float64(b.n)
	}
	sort.Slice(candidates, func(a, b int) bool {
		ia, ib := candidates[a], candidates[b]
		if combined[ia] != combined[ib] {
			return combined[ia] > combined[ib]
		}
		return ia < ib
	})
	if k < len(candidates) {
		candidates = candidates[:k]
	}

	out := make([]Result, 0, len(candidates))
	for _, idx := range candidates {
		out = append(out, Result{Doc: r.docs[idx], Score: combined[idx]})
	}
	return out
}

// normalizePool min–max scales a pool's scores to [0,1], keyed by doc ID.
// A flat pool maps to 1.0 when its scores are positive and 0.0 otherwise.
func normalizePool(results []Result) map[string]float64 {
	if len(results) == 0 {
		return nil
	}
	min, max := results[0].Score, results[0].Score
	for _, r := range results[1:] {
		if r.Score < min {
			min = r.Score
		}
		if r.Score > max {
			max = r.Score
		}
	}
	out := make(map[string]float64, len(results))
	for _, r := range results {
		switch {
		case max > min:
			out[r.Doc.DocID] = (r.Score - min) / (max - min)
		case max > 0:
			out[r.Doc.DocID] = 1.0
		default:
			out[r.Doc.DocID] = 0.0
		}
	}
	return out
}
