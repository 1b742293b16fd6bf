// Package benchmark contains Go benchmarks for the tokenizer, the corpus
// index build, and the three retrieval strategies, measuring throughput
// and allocation behaviour.
package benchmark

import (
	"fmt"
	"testing"

	"github.com/searchlab/adaptive-retrieval/internal/corpus"
	"github.com/searchlab/adaptive-retrieval/internal/index"
	"github.com/searchlab/adaptive-retrieval/internal/retriever"
	"github.com/searchlab/adaptive-retrieval/internal/router"
)

func syntheticCorpus(n int) []corpus.Document {
	topics := []string{
		"cache stampede mitigation with request coalescing and TTL jitter",
		"BM25 term frequency saturation and document length normalization",
		"vector similarity over character n-gram features for fuzzy matching",
		"connection pool sizing under bursty request load",
		"write-ahead logging and checkpointing in embedded databases",
	}
	docs := make([]corpus.Document, 0, n)
	for i := 0; i < n; i++ {
		topic := topics[i%len(topics)]
		docs = append(docs, corpus.Document{
			DocID: fmt.Sprintf("d%d", i),
			Title: fmt.Sprintf("Note %d", i),
			Text:  fmt.Sprintf("%s revision %d with incident INC-%d attached", topic, i, 40000+i),
		})
	}
	return docs
}

func BenchmarkIndexBuild(b *testing.B) {
	docs := syntheticCorpus(1000)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		index.Build(docs, index.DefaultRareDFThreshold)
	}
}

func BenchmarkSearch(b *testing.B) {
	docs := syntheticCorpus(1000)
	stats := index.Build(docs, index.DefaultRareDFThreshold)
	kw := retriever.BuildKeyword(docs, stats)
	vec := retriever.BuildVector(docs, stats)

	engines := []struct {
		name string
		r    retriever.Retriever
	}{
		{"keyword", kw},
		{"vector", vec},
		{"hybrid", retriever.BuildHybrid(docs, kw, vec)},
	}
	for _, e := range engines {
		b.Run(e.name, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				e.r.Search("cache stampede after TTL expiry INC-40123", 10)
			}
		})
	}
}

func BenchmarkFeaturize(b *testing.B) {
	docs := syntheticCorpus(1000)
	stats := index.Build(docs, index.DefaultRareDFThreshold)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		router.Featurize("what caused incident INC-40123 in the cache layer", stats.Vocab, stats.RareTerms)
	}
}
