// Package answer renders ranked retrieval results into a short templated
// answer with citations. It produces no prose beyond the template; the
// core only consumes the text for evaluation and logging.
package answer

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/searchlab/adaptive-retrieval/internal/retriever"
)

const (
	defaultMaxSentences = 2
	defaultMaxChars     = 900
)

var sentenceBoundary = regexp.MustCompile(`[.!?]\s+`)

// Answer is the generated text plus the doc IDs it cites.
type Answer struct {
	Text      string   `json:"text"`
	Citations []string `json:"citations"`
}

// JoinTopSentences keeps the first maxSentences sentences of text, joined
// with ". " and terminated with a period.
func JoinTopSentences(text string, maxSentences int) string {
	var parts []string
	for _, p := range sentenceBoundary.Split(text, -1) {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return ""
	}
	if maxSentences < len(parts) {
		parts = parts[:maxSentences]
	}
	out := strings.TrimSpace(strings.Join(parts, ". "))
	if strings.HasSuffix(out, ".") || strings.HasSuffix(out, "!") || strings.HasSuffix(out, "?") {
		return out
	}
	return out + "."
}

// BuildContext concatenates per-document snippet blocks up to a character
// budget.
func BuildContext(topK []retriever.Result, maxChars int) string {
	if maxChars <= 0 {
		maxChars = defaultMaxChars
	}
	var blocks []string
	used := 0
	for _, r := range topK {
		snippet := JoinTopSentences(r.Doc.Text, defaultMaxSentences)
		block := fmt.Sprintf("[%s] %s: %s", r.Doc.DocID, r.Doc.Title, snippet)
		if used+len(block) > maxChars {
			break
		}
		blocks = append(blocks, block)
		used += len(block)
	}
	return strings.Join(blocks, "\n")
}

// Generate templates an answer from the best-ranked result.
func Generate(query string, topK []retriever.Result) Answer {
	if len(topK) == 0 {
		return Answer{Text: "I couldn't find relevant context in the corpus.", Citations: []string{}}
	}
	top := topK[0].Doc
	snippet := JoinTopSentences(top.Text, defaultMaxSentences)
	text := fmt.Sprintf(
		"Based on the retrieved context, here's the best match:\n\n%s\n%s\n\n(Query: %s)",
		top.Title, snippet, query,
	)
	return Answer{Text: text, Citations: []string{top.DocID}}
}
