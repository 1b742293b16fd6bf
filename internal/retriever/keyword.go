package retriever

import (
	"github.com/searchlab/adaptive-retrieval/internal/corpus"
	"github.com/searchlab/adaptive-retrieval/internal/index"
	"github.com/searchlab/adaptive-retrieval/internal/tokenizer"
)

// BM25 constants.
const (
	bm25K1 = 1.5
	bm25B  = 0.75
)

// KeywordRetriever scores documents with BM25 over the token index. No
// positional or phrase information is modeled. Read-only after Build and
// safe for concurrent searches.
type KeywordRetriever struct {
	docs   []corpus.Document
	stats  *index.CorpusStats
	docTFs []map[string]int
}

// BuildKeyword precomputes a token frequency map per document, reusing the
// corpus stats for IDF and length normalization.
func BuildKeyword(docs []corpus.Document, stats *index.CorpusStats) *KeywordRetriever {
	docTFs := make([]map[string]int, len(docs))
	for i, d := range docs {
		docTFs[i] = index.TermFreq(tokenizer.Tokenize(d.Title + " " + d.Text))
	}
	return &KeywordRetriever{docs: docs, stats: stats, docTFs: docTFs}
}

// Search accumulates, per document, the BM25 contribution of every distinct
// query token present in the document. Tokens absent from the corpus
// vocabulary contribute zero. Documents matching no query token score 0.
func (r *KeywordRetriever) Search(query string, k int) []Result {
	qTF := index.TermFreq(tokenizer.Tokenize(query))

	avgDL := r.stats.AvgDL
	if avgDL == 0 {
		avgDL = 1.0
	}

	scores := make([]float64, len(r.docs))
	for i, d := range r.docs {
		tf := r.docTFs[i]
		dl := float64(r.stats.DocLen[d.DocID])
		denomNorm := bm25K1 * (1.0 - bm25B + bm25B*dl/avgDL)
		s := 0.0
		for t := range qTF {
			idf, ok := r.stats.IDF[t]
			if !ok {
				continue
			}
			f := float64(tf[t])
			if f <= 0 {
				continue
			}
			s += idf * (f * (bm25K1 + 1.0)) / (f + denomNorm)
		}
		scores[i] = s
	}
	return resultsFor(r.docs, scores, k)
}
