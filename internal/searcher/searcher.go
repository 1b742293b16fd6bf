// Package searcher orchestrates one retrieval request end to end: route,
// retrieve, answer, evaluate when a label exists, and record the run.
package searcher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/searchlab/adaptive-retrieval/internal/analytics"
	"github.com/searchlab/adaptive-retrieval/internal/answer"
	"github.com/searchlab/adaptive-retrieval/internal/corpus"
	"github.com/searchlab/adaptive-retrieval/internal/evaluator"
	"github.com/searchlab/adaptive-retrieval/internal/index"
	"github.com/searchlab/adaptive-retrieval/internal/retriever"
	"github.com/searchlab/adaptive-retrieval/internal/router"
	"github.com/searchlab/adaptive-retrieval/internal/searcher/cache"
	"github.com/searchlab/adaptive-retrieval/internal/telemetry"
	"github.com/searchlab/adaptive-retrieval/pkg/metrics"
	"github.com/searchlab/adaptive-retrieval/pkg/tracing"
)

// Options carries the optional collaborators. Any of them may be nil.
type Options struct {
	Cache     *cache.ResultCache
	Collector *analytics.Collector
	Metrics   *metrics.Metrics
}

// Searcher owns the per-corpus-version retrieval stack. It is read-only
// after construction apart from the router state, which lives in the
// telemetry store.
type Searcher struct {
	docs       []corpus.Document
	labels     map[string]corpus.QueryLabel
	retrievers map[router.Strategy]retriever.Retriever
	router     *router.Router
	store      telemetry.Store
	opts       Options
	logger     *slog.Logger
}

// RunOutput is the result of one routed retrieval.
type RunOutput struct {
	Query         string                                `json:"query"`
	Strategy      router.Strategy                       `json:"strategy"`
	Results       []retriever.Result                    `json:"results"`
	Answer        string                                `json:"answer"`
	Score         float64                               `json:"score"`
	Labeled       bool                                  `json:"labeled"`
	ExpectedDocID string                                `json:"expected_doc_id,omitempty"`
	CacheHit      bool                                  `json:"cache_hit"`
	Features      router.Features                       `json:"features"`
	Trace         map[router.Strategy]router.TraceEntry `json:"trace"`
}

// PerQuery is one row of an evaluation report.
type PerQuery struct {
	QueryID      string          `json:"query_id"`
	Query        string          `json:"query"`
	Chosen       router.Strategy `json:"chosen"`
	ChosenScore  float64         `json:"chosen_score"`
	VectorScore  float64         `json:"vector_score"`
	KeywordScore float64         `json:"keyword_score"`
	HybridScore  float64         `json:"hybrid_score"`
}

// EvalReport summarizes one pass over all labeled queries.
type EvalReport struct {
	MeanScore   float64      `json:"mean_score"`
	N           int          `json:"n"`
	RouterState router.State `json:"router_state"`
	PerQuery    []PerQuery   `json:"per_query"`
}

// New builds the full retrieval stack over one corpus snapshot.
func New(
	docs []corpus.Document,
	stats *index.CorpusStats,
	labels []corpus.QueryLabel,
	rt *router.Router,
	store telemetry.Store,
	opts Options,
) *Searcher {
	kw := retriever.BuildKeyword(docs, stats)
	vec := retriever.BuildVector(docs, stats)
	labelIndex := make(map[string]corpus.QueryLabel, len(labels))
	for _, l := range labels {
		labelIndex[l.Query] = l
	}
	return &Searcher{
		docs:   docs,
		labels: labelIndex,
		retrievers: map[router.Strategy]retriever.Retriever{
			router.StrategyKeyword: kw,
			router.StrategyVector:  vec,
			router.StrategyHybrid:  retriever.BuildHybrid(docs, kw, vec),
		},
		router: rt,
		store:  store,
		opts:   opts,
		logger: slog.Default().With("component", "searcher"),
	}
}

// Retrieve runs one strategy over the corpus, through the result cache
// when one is configured. The second return reports a cache hit.
func (s *Searcher) Retrieve(ctx context.Context, strategy router.Strategy, query string, k int) ([]retriever.Result, bool, error) {
	r, ok := s.retrievers[strategy]
	if !ok {
		return nil, false, fmt.Errorf("unknown strategy %q", strategy)
	}
	start := time.Now()
	var results []retriever.Result
	var cacheHit bool
	if s.opts.Cache != nil {
		var err error
		results, cacheHit, err = s.opts.Cache.GetOrCompute(ctx, string(strategy), query, k, func() []retriever.Result {
			return r.Search(query, k)
		})
		if err != nil {
			return nil, false, err
		}
	} else {
		results = r.Search(query, k)
	}
	if m := s.opts.Metrics; m != nil {
		m.RetrievalLatency.WithLabelValues(string(strategy)).Observe(time.Since(start).Seconds())
		m.RetrievalResultsCount.Observe(float64(len(results)))
		if s.opts.Cache != nil {
			if cacheHit {
				m.CacheHitsTotal.Inc()
			} else {
				m.CacheMissesTotal.Inc()
			}
		}
	}
	return results, cacheHit, nil
}

// RunOnce routes the query, retrieves with the chosen strategy, generates
// an answer, scores the run when the query is labeled, and appends the run
// record. Storage failures surface immediately.
func (s *Searcher) RunOnce(ctx context.Context, query string, k int) (*RunOutput, error) {
	start := time.Now()
	ctx, span := tracing.StartChildSpan(ctx, "run-once")
	defer span.End()

	decision, err := s.router.Choose(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("routing query: %w", err)
	}
	if m := s.opts.Metrics; m != nil {
		m.RoutingDecisionsTotal.WithLabelValues(string(decision.Strategy)).Inc()
	}

	results, cacheHit, err := s.Retrieve(ctx, decision.Strategy, query, k)
	if err != nil {
		return nil, err
	}
	ans := answer.Generate(query, results)

	out := &RunOutput{
		Query:    query,
		Strategy: decision.Strategy,
		Results:  results,
		Answer:   ans.Text,
		CacheHit: cacheHit,
		Features: decision.Features,
		Trace:    decision.Trace,
	}
	if label, ok := s.labels[query]; ok {
		scores := evaluator.Evaluate(results, ans.Text, label.ExpectedDocID, label.ExpectedAnswer)
		out.Score = scores.Total()
		out.Labeled = true
		out.ExpectedDocID = label.ExpectedDocID
	}

	meta := map[string]any{
		"k":           k,
		"features":    decision.Features,
		"trace":       decision.Trace,
		"top_doc_ids": docIDs(results),
		"cache_hit":   cacheHit,
	}
	if err := s.store.LogRun(ctx, telemetry.RunRecord{
		Query:    query,
		Strategy: string(decision.Strategy),
		Score:    out.Score,
		Meta:     meta,
	}); err != nil {
		if m := s.opts.Metrics; m != nil {
			m.RunLogFailures.Inc()
		}
		return nil, fmt.Errorf("logging run: %w", err)
	}

	if s.opts.Collector != nil {
		s.opts.Collector.Track(analytics.RunEvent{
			Type:      analytics.EventRun,
			Query:     query,
			Strategy:  string(decision.Strategy),
			Score:     out.Score,
			K:         k,
			Results:   len(results),
			CacheHit:  cacheHit,
			LatencyMs: time.Since(start).Milliseconds(),
			Timestamp: time.Now().UTC(),
		})
	}

	span.SetAttr("strategy", string(decision.Strategy))
	span.SetAttr("results", len(results))
	s.logger.Info("run completed",
		"query", query,
		"strategy", decision.Strategy,
		"results", len(results),
		"labeled", out.Labeled,
		"cache_hit", cacheHit,
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

// EvaluateAll scores every labeled query under all three strategies, feeds
// the comparison back into the router, and logs one run record per label
// with the full comparative breakdown.
func (s *Searcher) EvaluateAll(ctx context.Context, labels []corpus.QueryLabel, k int) (*EvalReport, error) {
	report := &EvalReport{PerQuery: make([]PerQuery, 0, len(labels))}
	total := 0.0

	for _, label := range labels {
		perStrategy := make(map[router.Strategy]evaluator.Scores, 3)
		topDocIDs := make(map[router.Strategy][]string, 3)
		for strat := range s.retrievers {
			results, _, err := s.Retrieve(ctx, strat, label.Query, k)
			if err != nil {
				return nil, err
			}
			ans := answer.Generate(label.Query, results)
			perStrategy[strat] = evaluator.Evaluate(results, ans.Text, label.ExpectedDocID, label.ExpectedAnswer)
			topDocIDs[strat] = docIDs(results)
		}

		decision, err := s.router.Choose(ctx, label.Query)
		if err != nil {
			return nil, fmt.Errorf("routing query %q: %w", label.Query, err)
		}
		chosen := perStrategy[decision.Strategy].Total()
		total += chosen

		feedback := map[router.Strategy]float64{
			router.StrategyVector:  perStrategy[router.StrategyVector].Total(),
			router.StrategyKeyword: perStrategy[router.StrategyKeyword].Total(),
			router.StrategyHybrid:  perStrategy[router.StrategyHybrid].Total(),
		}
		if _, err := s.router.Update(ctx, feedback); err != nil {
			return nil, fmt.Errorf("updating router weights: %w", err)
		}
		if m := s.opts.Metrics; m != nil {
			outcome := "applied"
			if feedback[router.StrategyVector] == feedback[router.StrategyKeyword] &&
				feedback[router.StrategyKeyword] == feedback[router.StrategyHybrid] {
				outcome = "noop"
			}
			m.RouterUpdatesTotal.WithLabelValues(outcome).Inc()
		}

		meta := map[string]any{
			"eval":            true,
			"query_id":        label.QueryID,
			"expected_doc_id": label.ExpectedDocID,
			"features":        decision.Features,
			"trace":           decision.Trace,
		}
		for strat, scores := range perStrategy {
			meta[string(strat)] = map[string]any{
				"score_total": scores.Total(),
				"hit_at_k":    scores.HitAtK,
				"exact_match": scores.ExactMatch,
				"top_doc_ids": topDocIDs[strat],
			}
		}
		if err := s.store.LogRun(ctx, telemetry.RunRecord{
			Query:    label.Query,
			Strategy: string(decision.Strategy),
			Score:    chosen,
			Meta:     meta,
		}); err != nil {
			return nil, fmt.Errorf("logging evaluation run: %w", err)
		}

		if m := s.opts.Metrics; m != nil {
			m.EvalRunsTotal.Inc()
			m.EvalScore.Observe(chosen)
		}
		if s.opts.Collector != nil {
			s.opts.Collector.Track(analytics.RunEvent{
				Type:      analytics.EventEvaluation,
				Query:     label.Query,
				Strategy:  string(decision.Strategy),
				Score:     chosen,
				K:         k,
				Timestamp: time.Now().UTC(),
			})
		}

		report.PerQuery = append(report.PerQuery, PerQuery{
			QueryID:      label.QueryID,
			Query:        label.Query,
			Chosen:       decision.Strategy,
			ChosenScore:  chosen,
			VectorScore:  perStrategy[router.StrategyVector].Total(),
			KeywordScore: perStrategy[router.StrategyKeyword].Total(),
			HybridScore:  perStrategy[router.StrategyHybrid].Total(),
		})
	}

	if len(labels) > 0 {
		report.MeanScore = total / float64(len(labels))
	}
	report.N = len(labels)

	state, err := s.router.LoadState(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading final router state: %w", err)
	}
	report.RouterState = state
	if m := s.opts.Metrics; m != nil {
		m.RouterWeight.WithLabelValues(string(router.StrategyVector)).Set(state.WeightVector)
		m.RouterWeight.WithLabelValues(string(router.StrategyKeyword)).Set(state.WeightKeyword)
		m.RouterWeight.WithLabelValues(string(router.StrategyHybrid)).Set(state.WeightHybrid)
	}
	return report, nil
}

func docIDs(results []retriever.Result) []string {
	ids := make([]string, 0, len(results))
	for _, r := range results {
		ids = append(ids, r.Doc.DocID)
	}
	return ids
}
