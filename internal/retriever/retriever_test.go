package retriever

import (
	"reflect"
	"testing"

	"github.com/searchlab/adaptive-retrieval/internal/corpus"
	"github.com/searchlab/adaptive-retrieval/internal/index"
)

func testCorpus() []corpus.Document {
	return []corpus.Document{
		{DocID: "d1", Title: "Cache stampede postmortem", Text: "Incident INC-49217 was caused by a cache stampede after TTL expiry. The fix added request coalescing."},
		{DocID: "d2", Title: "Caching overview", Text: "Caching improves latency by storing hot values close to the application. A time-to-live bounds staleness."},
		{DocID: "d3", Title: "BM25 ranking", Text: "BM25 is a probabilistic ranking function built on term frequency and inverse document frequency."},
		{DocID: "d4", Title: "Vector similarity search", Text: "Vector search ranks by cosine similarity. Character n-gram features make matching robust to misspellings."},
	}
}

func buildAll(t *testing.T) ([]corpus.Document, *KeywordRetriever, *VectorRetriever, *HybridRetriever) {
	t.Helper()
	docs := testCorpus()
	stats := index.Build(docs, index.DefaultRareDFThreshold)
	kw := BuildKeyword(docs, stats)
	vec := BuildVector(docs, stats)
	return docs, kw, vec, BuildHybrid(docs, kw, vec)
}

func TestStableTopK(t *testing.T) {
	scores := []float64{1.0, 3.0, 3.0, 2.0}
	got := stableTopK(scores, 3)
	// Ties broken by ascending index: 1 before 2.
	want := []int{1, 2, 3}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("stableTopK = %v, want %v", got, want)
	}
	if got := stableTopK(scores, 0); got != nil {
		t.Errorf("k=0 should return nil, got %v", got)
	}
	if got := stableTopK(scores, 10); len(got) != len(scores) {
		t.Errorf("k beyond len should return all, got %d", len(got))
	}
}

func TestKeywordSearchRanking(t *testing.T) {
	_, kw, _, _ := buildAll(t)
	got := kw.Search("cache stampede after TTL expiry", 2)
	if len(got) == 0 || got[0].Doc.DocID != "d1" {
		t.Fatalf("expected d1 first, got %+v", got)
	}
	if got[0].Score <= 0 {
		t.Errorf("expected positive score for matching doc, got %v", got[0].Score)
	}
}

func TestKeywordSearchOOVQuery(t *testing.T) {
	docs, kw, _, _ := buildAll(t)
	got := kw.Search("zzyzx qwfp", len(docs))
	if len(got) != len(docs) {
		t.Fatalf("got %d results, want %d", len(got), len(docs))
	}
	// All scores zero: stable order is corpus order.
	for i, r := range got {
		if r.Score != 0 {
			t.Errorf("result %d score = %v, want 0", i, r.Score)
		}
		if r.Doc.DocID != docs[i].DocID {
			t.Errorf("result %d = %s, want corpus order %s", i, r.Doc.DocID, docs[i].DocID)
		}
	}
}

func TestKeywordSearchDeterministic(t *testing.T) {
	_, kw, _, _ := buildAll(t)
	a := kw.Search("cache latency", 3)
	b := kw.Search("cache latency", 3)
	if !reflect.DeepEqual(a, b) {
		t.Error("repeated searches should return identical results")
	}
}

func TestKeywordSearchKBounds(t *testing.T) {
	docs, kw, _, _ := buildAll(t)
	if got := kw.Search("cache", 0); got != nil {
		t.Errorf("k=0 should return nil, got %v", got)
	}
	if got := kw.Search("cache", 100); len(got) != len(docs) {
		t.Errorf("k beyond corpus should return all %d docs, got %d", len(docs), len(got))
	}
}

func TestCharNGrams(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"empty", "", nil},
		{"shorter than n", "ab", []string{"ab"}},
		{"exactly n", "abcd", []string{"abcd"}},
		{"sliding window", "abcde", []string{"abcd", "bcde"}},
		{"whitespace normalized", "A  b", []string{"a b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := charNGrams(tt.in, 4)
			if len(got) == 0 && len(tt.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("charNGrams(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestVectorSearchToleratesMisspelling(t *testing.T) {
	_, _, vec, _ := buildAll(t)
	got := vec.Search("cashe stampede", 1)
	if len(got) != 1 || got[0].Doc.DocID != "d1" {
		t.Fatalf("expected d1 for misspelled query, got %+v", got)
	}
}

func TestVectorSearchScoresBounded(t *testing.T) {
	docs, _, vec, _ := buildAll(t)
	for _, r := range vec.Search("vector cosine similarity", len(docs)) {
		if r.Score < 0 || r.Score > 1.0000001 {
			t.Errorf("cosine score out of range: %v for %s", r.Score, r.Doc.DocID)
		}
	}
}

func TestHybridSearchIncidentQuery(t *testing.T) {
	_, _, _, hy := buildAll(t)
	got := hy.Search("what caused INC-49217", 3)
	if len(got) == 0 || got[0].Doc.DocID != "d1" {
		t.Fatalf("expected d1 first for incident query, got %+v", got)
	}
	for i := 1; i < len(got); i++ {
		if got[i].Score > got[i-1].Score {
			t.Error("hybrid results not sorted by descending score")
		}
	}
}

func TestHybridSearchBounds(t *testing.T) {
	docs, _, _, hy := buildAll(t)
	if got := hy.Search("cache", 0); got != nil {
		t.Errorf("k=0 should return nil, got %v", got)
	}
	if got := hy.Search("cache", 100); len(got) != len(docs) {
		t.Errorf("k beyond corpus should return all %d docs, got %d", len(docs), len(got))
	}
	for _, r := range hy.Search("cache", len(docs)) {
		if r.Score < 0 || r.Score > 1 {
			t.Errorf("blended score out of [0,1]: %v", r.Score)
		}
	}
}

func TestHybridSearchDeterministic(t *testing.T) {
	_, _, _, hy := buildAll(t)
	a := hy.Search("caching latency", 3)
	b := hy.Search("caching latency", 3)
	if !reflect.DeepEqual(a, b) {
		t.Error("repeated hybrid searches should return identical results")
	}
}

func TestNormalizePool(t *testing.T) {
	pool := []Result{
		{Doc: corpus.Document{DocID: "a"}, Score: 2.0},
		{Doc: corpus.Document{DocID: "b"}, Score: 1.0},
		{Doc: corpus.Document{DocID: "c"}, Score: 0.0},
	}
	norm := normalizePool(pool)
	if norm["a"] != 1.0 || norm["b"] != 0.5 || norm["c"] != 0.0 {
		t.Errorf("normalizePool = %v", norm)
	}

	flatPositive := normalizePool([]Result{
		{Doc: corpus.Document{DocID: "a"}, Score: 3.0},
		{Doc: corpus.Document{DocID: "b"}, Score: 3.0},
	})
	if flatPositive["a"] != 1.0 || flatPositive["b"] != 1.0 {
		t.Errorf("flat positive pool should normalize to 1.0, got %v", flatPositive)
	}

	flatZero := normalizePool([]Result{
		{Doc: corpus.Document{DocID: "a"}, Score: 0.0},
	})
	if flatZero["a"] != 0.0 {
		t.Errorf("flat zero pool should normalize to 0.0, got %v", flatZero)
	}
	if got := normalizePool(nil); got != nil {
		t.Errorf("empty pool should return nil, got %v", got)
	}
}
