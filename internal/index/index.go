// Package index builds corpus-wide statistics consumed by both scoring
// engines: document frequency, smoothed IDF, average document length, and
// the rare-term set.
package index

import (
	"math"

	"github.com/searchlab/adaptive-retrieval/internal/corpus"
	"github.com/searchlab/adaptive-retrieval/internal/tokenizer"
)

// DefaultRareDFThreshold marks tokens appearing in at most this many
// documents as rare.
const DefaultRareDFThreshold = 1

// CorpusStats is an immutable snapshot over a fixed document set. It is
// rebuilt whenever the document set changes, never mutated in place, and is
// safe for concurrent readers.
type CorpusStats struct {
	Vocab     map[string]struct{}
	DF        map[string]int
	IDF       map[string]float64
	AvgDL     float64
	DocLen    map[string]int
	RareTerms map[string]struct{}
}

// Build tokenizes title + " " + text of every document and accumulates
// per-token document frequency (counted once per document) and per-document
// token length. Deterministic given a fixed document order.
func Build(docs []corpus.Document, rareDFThreshold int) *CorpusStats {
	df := make(map[string]int)
	docLen := make(map[string]int, len(docs))
	totalLen := 0

	for _, d := range docs {
		toks := tokenizer.Tokenize(d.Title + " " + d.Text)
		docLen[d.DocID] = len(toks)
		totalLen += len(toks)
		seen := make(map[string]struct{}, len(toks))
		for _, t := range toks {
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			df[t]++
		}
	}

	avgDL := 0.0
	if len(docs) > 0 {
		avgDL = float64(totalLen) / float64(len(docs))
	}

	idf := make(map[string]float64, len(df))
	vocab := make(map[string]struct{}, len(df))
	rare := make(map[string]struct{})
	for t, c := range df {
		idf[t] = SmoothedIDF(len(docs), c)
		vocab[t] = struct{}{}
		if c <= rareDFThreshold {
			rare[t] = struct{}{}
		}
	}

	return &CorpusStats{
		Vocab:     vocab,
		DF:        df,
		IDF:       idf,
		AvgDL:     avgDL,
		DocLen:    docLen,
		RareTerms: rare,
	}
}

// SmoothedIDF is the BM25-style smoothed inverse document frequency,
// ln(1 + (N − df + 0.5)/(df + 0.5)). N is treated as at least 1.
func SmoothedIDF(nDocs, df int) float64 {
	if nDocs < 1 {
		nDocs = 1
	}
	return math.Log(1.0 + (float64(nDocs)-float64(df)+0.5)/(float64(df)+0.5))
}

// TermFreq counts token occurrences.
func TermFreq(tokens []string) map[string]int {
	tf := make(map[string]int, len(tokens))
	for _, t := range tokens {
		tf[t]++
	}
	return tf
}
