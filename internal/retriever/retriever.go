// Package retriever implements the three retrieval strategies over an
// indexed corpus: BM25 keyword scoring, a character-n-gram TF-IDF vector
// proxy, and a hybrid combination of the two.
package retriever

import (
	"sort"

	"github.com/searchlab/adaptive-retrieval/internal/corpus"
)

// Result pairs a document with its retrieval score. Result lists are
// ordered by descending score, ties broken by original corpus order.
type Result struct {
	Doc   corpus.Document `json:"doc"`
	Score float64         `json:"score"`
}

// Retriever ranks corpus documents against a query and returns at most k
// results.
type Retriever interface {
	Search(query string, k int) []Result
}

// stableTopK returns the indices of the k highest scores, ordered by
// descending score with ties broken by ascending index. Repeated calls with
// identical input produce identical output.
func stableTopK(scores []float64, k int) []int {
	if k <= 0 {
		return nil
	}
	idxs := make([]int, len(scores))
	for i := range idxs {
		idxs[i] = i
	}
	sort.SliceStable(idxs, func(a, b int) bool {
		return scores[idxs[a]] > scores[idxs[b]]
	})
	if k < len(idxs) {
		idxs = idxs[:k]
	}
	return idxs
}

func resultsFor(docs []corpus.Document, scores []float64, k int) []Result {
	idxs := stableTopK(scores, k)
	out := make([]Result, 0, len(idxs))
	for _, i := range idxs {
		out = append(out, Result{Doc: docs[i], Score: scores[i]})
	}
	return out
}
