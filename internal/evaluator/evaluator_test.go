package evaluator

import (
	"math"
	"testing"

	"github.com/searchlab/adaptive-retrieval/internal/corpus"
	"github.com/searchlab/adaptive-retrieval/internal/retriever"
)

func results(ids ...string) []retriever.Result {
	out := make([]retriever.Result, 0, len(ids))
	for _, id := range ids {
		out = append(out, retriever.Result{Doc: corpus.Document{DocID: id}})
	}
	return out
}

func TestScoreRetrieval(t *testing.T) {
	top := results("d3", "d1", "d2")
	if got := ScoreRetrieval(top, "d1"); got != 1.0 {
		t.Errorf("expected hit anywhere in top-k, got %v", got)
	}
	if got := ScoreRetrieval(top, "d9"); got != 0.0 {
		t.Errorf("expected miss, got %v", got)
	}
	if got := ScoreRetrieval(nil, "d1"); got != 0.0 {
		t.Errorf("expected miss on empty results, got %v", got)
	}
}

func TestScoreAnswer(t *testing.T) {
	tests := []struct {
		name     string
		answer   string
		expected string
		want     float64
	}{
		{"exact", "a cache stampede", "a cache stampede", 1.0},
		{"case and whitespace normalized", "  A  Cache\tStampede ", "a cache stampede", 1.0},
		{"different text", "a thundering herd", "a cache stampede", 0.0},
		{"both empty", "", "", 1.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ScoreAnswer(tt.answer, tt.expected); got != tt.want {
				t.Errorf("ScoreAnswer(%q, %q) = %v, want %v", tt.answer, tt.expected, got, tt.want)
			}
		})
	}
}

func TestTotalWeights(t *testing.T) {
	s := Scores{HitAtK: 1.0, ExactMatch: 0.0}
	if math.Abs(s.Total()-0.7) > 1e-12 {
		t.Errorf("Total = %v, want 0.7", s.Total())
	}
	s = Scores{HitAtK: 1.0, ExactMatch: 1.0}
	if math.Abs(s.Total()-1.0) > 1e-12 {
		t.Errorf("Total = %v, want 1.0", s.Total())
	}
}

func TestEvaluate(t *testing.T) {
	got := Evaluate(results("d1"), "the fix", "d1", "The Fix")
	if got.HitAtK != 1.0 || got.ExactMatch != 1.0 {
		t.Errorf("Evaluate = %+v, want both components 1.0", got)
	}
}
