package retriever

import (
	"math"
	"strings"

	"github.com/searchlab/adaptive-retrieval/internal/corpus"
	"github.com/searchlab/adaptive-retrieval/internal/index"
)

// ngramSize is the fixed character n-gram width.
const ngramSize = 4

// VectorRetriever ranks by cosine similarity of character-n-gram TF-IDF
// vectors. It stands in for a dense embedding retriever: it tolerates typos
// and substrings and ignores hyphen/underscore token boundaries, so it
// disagrees with keyword matching in useful ways. The n-gram IDF table is a
// separate namespace from the token IDF used by the keyword engine.
// Read-only after Build and safe for concurrent searches.
type VectorRetriever struct {
	docs     []corpus.Document
	idf      map[string]float64
	docVecs  []map[string]float64
	docNorms []float64
}

// BuildVector extracts overlapping character n-grams per document, derives
// an n-gram DF/IDF table, and caches each document's sparse weighted vector
// and its L2 norm (an all-zero vector gets norm 1.0 so cosine never
// divides by zero).
func BuildVector(docs []corpus.Document, _ *index.CorpusStats) *VectorRetriever {
	df := make(map[string]int)
	perDoc := make([][]string, len(docs))
	for i, d := range docs {
		grams := charNGrams(d.Title+" "+d.Text, ngramSize)
		perDoc[i] = grams
		seen := make(map[string]struct{}, len(grams))
		for _, g := range grams {
			if _, ok := seen[g]; ok {
				continue
			}
			seen[g] = struct{}{}
			df[g]++
		}
	}

	idf := make(map[string]float64, len(df))
	for g, c := range df {
		idf[g] = index.SmoothedIDF(len(docs), c)
	}

	docVecs := make([]map[string]float64, len(docs))
	docNorms := make([]float64, len(docs))
	for i := range docs {
		v := weightedVector(perDoc[i], idf)
		docVecs[i] = v
		docNorms[i] = l2NormFloored(v)
	}
	return &VectorRetriever{docs: docs, idf: idf, docVecs: docVecs, docNorms: docNorms}
}

// Search builds the query's n-gram vector identically to the document
// vectors and scores every document by cosine similarity.
func (r *VectorRetriever) Search(query string, k int) []Result {
	q := weightedVector(charNGrams(query, ngramSize), r.idf)
	qn := l2NormFloored(q)

	scores := make([]float64, len(r.docs))
	for i := range r.docs {
		scores[i] = dot(q, r.docVecs[i]) / (qn * r.docNorms[i])
	}
	return resultsFor(r.docs, scores, k)
}

// charNGrams lowercases and whitespace-normalizes s, then extracts
// overlapping n-grams. Strings shorter than n degrade to the whole
// normalized string; an empty string yields no grams.
func charNGrams(s string, n int) []string {
	norm := strings.Join(strings.Fields(strings.ToLower(s)), " ")
	if norm == "" {
		return nil
	}
	runes := []rune(norm)
	if len(runes) < n {
		return []string{norm}
	}
	grams := make([]string, 0, len(runes)-n+1)
	for i := 0; i+n <= len(runes); i++ {
		grams = append(grams, string(runes[i:i+n]))
	}
	return grams
}

// weightedVector applies sublinear tf (1 + ln tf) times IDF per gram,
// skipping grams outside the IDF table.
func weightedVector(grams []string, idf map[string]float64) map[string]float64 {
	tf := index.TermFreq(grams)
	v := make(map[string]float64, len(tf))
	for g, c := range tf {
		w, ok := idf[g]
		if !ok {
			continue
		}
		v[g] = (1.0 + math.Log(float64(c))) * w
	}
	return v
}

func dot(a, b map[string]float64) float64 {
	if len(a) > len(b) {
		a, b = b, a
	}
	s := 0.0
	for k, v := range a {
		s += v * b[k]
	}
	return s
}

func l2NormFloored(v map[string]float64) float64 {
	s := 0.0
	for _, x := range v {
		s += x * x
	}
	n := math.Sqrt(s)
	if n == 0 {
		return 1.0
	}
	return n
}
