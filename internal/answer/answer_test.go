package answer

import (
	"strings"
	"testing"

	"github.com/searchlab/adaptive-retrieval/internal/corpus"
	"github.com/searchlab/adaptive-retrieval/internal/retriever"
)

func TestJoinTopSentences(t *testing.T) {
	text := "First sentence. Second one! Third here? Fourth never shows."
	got := JoinTopSentences(text, 2)
	if got != "First sentence. Second one." {
		t.Errorf("got %q", got)
	}
	if got := JoinTopSentences("", 2); got != "" {
		t.Errorf("expected empty output for empty input, got %q", got)
	}
	if got := JoinTopSentences("no terminator", 2); got != "no terminator." {
		t.Errorf("expected terminal period appended, got %q", got)
	}
}

func TestBuildContextBudget(t *testing.T) {
	top := []retriever.Result{
		{Doc: corpus.Document{DocID: "d1", Title: "A", Text: strings.Repeat("words ", 50) + "."}},
		{Doc: corpus.Document{DocID: "d2", Title: "B", Text: "short."}},
	}
	ctx := BuildContext(top, 80)
	if strings.Contains(ctx, "[d1]") {
		t.Error("first block exceeds the budget and should be dropped")
	}
	full := BuildContext(top, 0)
	if !strings.Contains(full, "[d1]") || !strings.Contains(full, "[d2]") {
		t.Errorf("default budget should fit both blocks, got %q", full)
	}
}

func TestGenerate(t *testing.T) {
	top := []retriever.Result{
		{Doc: corpus.Document{DocID: "d1", Title: "Cache stampede postmortem", Text: "Caused by TTL expiry. The fix added coalescing. More detail."}},
	}
	got := Generate("what caused it", top)
	if len(got.Citations) != 1 || got.Citations[0] != "d1" {
		t.Errorf("citations = %v, want [d1]", got.Citations)
	}
	if !strings.Contains(got.Text, "Cache stampede postmortem") {
		t.Errorf("answer should cite the top document title, got %q", got.Text)
	}
	if !strings.Contains(got.Text, "what caused it") {
		t.Errorf("answer should echo the query, got %q", got.Text)
	}
	if strings.Contains(got.Text, "More detail") {
		t.Error("answer should keep only the leading sentences")
	}
}

func TestGenerateEmptyResults(t *testing.T) {
	got := Generate("anything", nil)
	if got.Text != "I couldn't find relevant context in the corpus." {
		t.Errorf("unexpected fallback text: %q", got.Text)
	}
	if len(got.Citations) != 0 {
		t.Errorf("expected no citations, got %v", got.Citations)
	}
}
