package router

import (
	"github.com/searchlab/adaptive-retrieval/internal/tokenizer"
)

// Features are the coarse routing signals derived from a raw query. All
// ratios are zero when the query has no tokens.
type Features struct {
	NTokens    int     `json:"n_tokens"`
	DigitRatio float64 `json:"digit_ratio"`
	OOVRatio   float64 `json:"oov_ratio"`
	RareRatio  float64 `json:"rare_ratio"`
}

// Featurize is a pure function of (query, vocab, rareTerms). It computes,
// over the query's tokens, the fraction containing at least one digit, the
// fraction absent from the corpus vocabulary, and the fraction present in
// the rare-term set.
func Featurize(query string, vocab, rareTerms map[string]struct{}) Features {
	toks := tokenizer.Tokenize(query)
	n := len(toks)
	if n == 0 {
		return Features{}
	}
	var digits, oov, rare int
	for _, t := range toks {
		if tokenizer.HasDigit(t) {
			digits++
		}
		if _, ok := vocab[t]; !ok {
			oov++
		}
		if _, ok := rareTerms[t]; ok {
			rare++
		}
	}
	return Features{
		NTokens:    n,
		DigitRatio: float64(digits) / float64(n),
		OOVRatio:   float64(oov) / float64(n),
		RareRatio:  float64(rare) / float64(n),
	}
}
