// Package evaluator scores one retrieval run against its label. Scores are
// deterministic and bounded to [0,1].
package evaluator

import (
	"strings"

	"github.com/searchlab/adaptive-retrieval/internal/retriever"
)

// Scores breaks down one evaluated run.
type Scores struct {
	HitAtK     float64 `json:"hit_at_k"`
	ExactMatch float64 `json:"exact_match"`
}

// Total combines the components with fixed weights summing to 1.
func (s Scores) Total() float64 {
	return 0.7*s.HitAtK + 0.3*s.ExactMatch
}

// ScoreRetrieval returns 1 when the expected document appears anywhere in
// the top-k results.
func ScoreRetrieval(topK []retriever.Result, expectedDocID string) float64 {
	for _, r := range topK {
		if r.Doc.DocID == expectedDocID {
			return 1.0
		}
	}
	return 0.0
}

// ScoreAnswer is a case-insensitive, whitespace-normalized exact match.
func ScoreAnswer(answer, expected string) float64 {
	if normalize(answer) == normalize(expected) {
		return 1.0
	}
	return 0.0
}

// Evaluate scores a full run: ranked results plus the generated answer.
func Evaluate(topK []retriever.Result, answerText, expectedDocID, expectedAnswer string) Scores {
	return Scores{
		HitAtK:     ScoreRetrieval(topK, expectedDocID),
		ExactMatch: ScoreAnswer(answerText, expectedAnswer),
	}
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
