// Package router decides which retrieval strategy serves a query. The
// decision blends hand-tuned heuristics over query features with learned
// per-strategy weights, and the weights adapt online from comparative
// evaluation feedback.
package router

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/searchlab/adaptive-retrieval/internal/telemetry"
)

// Strategy is one of the three retrieval modes. The set is closed.
type Strategy string

const (
	StrategyKeyword Strategy = "keyword"
	StrategyVector  Strategy = "vector"
	StrategyHybrid  Strategy = "hybrid"
)

// tiePriority orders strategies for deterministic argmax tie-breaks:
// hybrid wins ties against both, keyword wins ties against vector. This
// favors the safe default when signals are ambiguous.
var tiePriority = []Strategy{StrategyHybrid, StrategyKeyword, StrategyVector}

// DefaultStateKey is the fixed, versioned key the router state lives
// under. Schema changes to the state shape go behind a new key so old
// readers keep working.
const DefaultStateKey = "router_state:v1"

// DefaultLR is the weight nudge applied per update when no persisted state
// exists yet.
const DefaultLR = 0.25

// State holds the learned additive bias per strategy plus the learning
// rate. Weights are unbounded and signed; lr is part of persisted state and
// is never auto-tuned here.
type State struct {
	WeightVector  float64 `json:"weight_vector"`
	WeightKeyword float64 `json:"weight_keyword"`
	WeightHybrid  float64 `json:"weight_hybrid"`
	LR            float64 `json:"lr"`
}

func (s State) weight(strategy Strategy) float64 {
	switch strategy {
	case StrategyVector:
		return s.WeightVector
	case StrategyKeyword:
		return s.WeightKeyword
	default:
		return s.WeightHybrid
	}
}

func (s *State) addWeight(strategy Strategy, delta float64) {
	switch strategy {
	case StrategyVector:
		s.WeightVector += delta
	case StrategyKeyword:
		s.WeightKeyword += delta
	default:
		s.WeightHybrid += delta
	}
}

// TraceEntry is the per-strategy breakdown of one routing decision.
type TraceEntry struct {
	Heuristic float64 `json:"heuristic"`
	Weight    float64 `json:"weight"`
	Score     float64 `json:"score"`
}

// Decision is the full outcome of Choose. Trace always carries an entry
// for every strategy; it is data for observability, not a side effect.
type Decision struct {
	Strategy Strategy                `json:"strategy"`
	Features Features                `json:"features"`
	Trace    map[Strategy]TraceEntry `json:"trace"`
}

// Router routes queries to strategies and learns from feedback. It holds
// no cached state between calls: every decision and update reloads the
// persisted weights so it reflects the latest learned value.
type Router struct {
	vocab     map[string]struct{}
	rareTerms map[string]struct{}
	store     telemetry.Store
	stateKey  string
	defaultLR float64
	logger    *slog.Logger
}

// New creates a Router over the given corpus vocabulary and rare-term set.
// An empty stateKey or non-positive lr falls back to the defaults.
func New(vocab, rareTerms map[string]struct{}, store telemetry.Store, stateKey string, lr float64) *Router {
	if stateKey == "" {
		stateKey = DefaultStateKey
	}
	if lr <= 0 {
		lr = DefaultLR
	}
	return &Router{
		vocab:     vocab,
		rareTerms: rareTerms,
		store:     store,
		stateKey:  stateKey,
		defaultLR: lr,
		logger:    slog.Default().With("component", "adaptive-router"),
	}
}

func (r *Router) defaultState() State {
	return State{LR: r.defaultLR}
}

// LoadState reads the persisted state, falling back to the default when
// the key is absent.
func (r *Router) LoadState(ctx context.Context) (State, error) {
	def, err := json.Marshal(r.defaultState())
	if err != nil {
		return State{}, fmt.Errorf("marshaling default state: %w", err)
	}
	raw, err := r.store.GetState(ctx, r.stateKey, def)
	if err != nil {
		return State{}, err
	}
	state := r.defaultState()
	if err := json.Unmarshal(raw, &state); err != nil {
		return State{}, fmt.Errorf("decoding router state: %w", err)
	}
	if state.LR <= 0 {
		state.LR = r.defaultLR
	}
	return state, nil
}

// SaveState persists the state under the router's versioned key.
func (r *Router) SaveState(ctx context.Context, state State) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshaling router state: %w", err)
	}
	return r.store.SetState(ctx, r.stateKey, raw)
}

// heuristics computes the hand-tuned preference score per strategy:
// digits, out-of-vocabulary tokens, and rare terms push toward keyword;
// in-vocabulary prose pushes toward vector; hybrid blends both plus an
// agreement term.
func heuristics(f Features) map[Strategy]float64 {
	keyword := 1.25*f.DigitRatio + 1.00*f.OOVRatio + 1.25*f.RareRatio
	if f.NTokens <= 3 {
		keyword += 0.10
	}
	vector := 0.50 * (1.0 - math.Min(1.0, f.OOVRatio+f.RareRatio))
	hybrid := 0.35*keyword + 0.35*vector + 0.15*(1.0-math.Abs(f.OOVRatio-f.RareRatio))
	return map[Strategy]float64{
		StrategyKeyword: keyword,
		StrategyVector:  vector,
		StrategyHybrid:  hybrid,
	}
}

// Choose computes query features, loads the current state, and selects the
// strategy with the maximum heuristic + learned-weight score. The returned
// decision always carries a complete per-strategy trace.
func (r *Router) Choose(ctx context.Context, query string) (Decision, error) {
	feats := Featurize(query, r.vocab, r.rareTerms)
	state, err := r.LoadState(ctx)
	if err != nil {
		return Decision{}, err
	}

	h := heuristics(feats)
	trace := make(map[Strategy]TraceEntry, len(tiePriority))
	best := tiePriority[0]
	bestScore := math.Inf(-1)
	for _, strat := range tiePriority {
		entry := TraceEntry{
			Heuristic: h[strat],
			Weight:    state.weight(strat),
			Score:     h[strat] + state.weight(strat),
		}
		trace[strat] = entry
		if entry.Score > bestScore {
			best = strat
			bestScore = entry.Score
		}
	}

	r.logger.Debug("routing decision",
		"query", query,
		"strategy", best,
		"n_tokens", feats.NTokens,
		"digit_ratio", feats.DigitRatio,
		"oov_ratio", feats.OOVRatio,
		"rare_ratio", feats.RareRatio,
	)
	return Decision{Strategy: best, Features: feats, Trace: trace}, nil
}

// Update applies one comparative feedback step: the strategy with the
// strictly best observed quality gains lr, and every losing strategy loses
// lr divided by the number of losers, so the weight mass moved out equals
// the mass moved in. An empty or all-equal score map is a no-op. Ties
// among top scorers resolve to the lexicographically smallest name.
//
// The read-modify-write runs inside one transaction when the backend
// supports it; otherwise concurrent updates from multiple processes are
// last-write-wins (see the telemetry package).
func (r *Router) Update(ctx context.Context, scores map[Strategy]float64) (State, error) {
	def, err := json.Marshal(r.defaultState())
	if err != nil {
		return State{}, fmt.Errorf("marshaling default state: %w", err)
	}

	var updated State
	apply := func(raw json.RawMessage) (json.RawMessage, error) {
		state := r.defaultState()
		if err := json.Unmarshal(raw, &state); err != nil {
			return nil, fmt.Errorf("decoding router state: %w", err)
		}
		if state.LR <= 0 {
			state.LR = r.defaultLR
		}
		applyFeedback(&state, scores)
		updated = state
		out, err := json.Marshal(state)
		if err != nil {
			return nil, fmt.Errorf("marshaling router state: %w", err)
		}
		return out, nil
	}

	if winner, ok := feedbackWinner(scores); !ok {
		// No signal: leave persisted state untouched.
		state, err := r.LoadState(ctx)
		if err != nil {
			return State{}, err
		}
		return state, nil
	} else if updater, ok := r.store.(telemetry.StateUpdater); ok {
		if err := updater.UpdateState(ctx, r.stateKey, def, apply); err != nil {
			return State{}, err
		}
		r.logger.Debug("router weights updated", "winner", winner, "transactional", true)
		return updated, nil
	} else {
		raw, err := r.store.GetState(ctx, r.stateKey, def)
		if err != nil {
			return State{}, err
		}
		next, err := apply(raw)
		if err != nil {
			return State{}, err
		}
		if err := r.store.SetState(ctx, r.stateKey, next); err != nil {
			return State{}, err
		}
		r.logger.Debug("router weights updated", "winner", winner, "transactional", false)
		return updated, nil
	}
}

// feedbackWinner picks the winning strategy from a score map, or reports
// that the feedback carries no signal (empty map or an exact tie across
// every entry).
func feedbackWinner(scores map[Strategy]float64) (Strategy, bool) {
	if len(scores) == 0 {
		return "", false
	}
	names := make([]Strategy, 0, len(scores))
	for s := range scores {
		names = append(names, s)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })

	best := names[0]
	allEqual := true
	for _, s := range names[1:] {
		if scores[s] != scores[best] {
			allEqual = false
		}
		if scores[s] > scores[best] {
			best = s
		}
	}
	if allEqual {
		return "", false
	}
	return best, true
}

func applyFeedback(state *State, scores map[Strategy]float64) {
	winner, ok := feedbackWinner(scores)
	if !ok {
		return
	}
	losers := len(scores) - 1
	state.addWeight(winner, state.LR)
	if losers > 0 {
		penalty := state.LR / float64(losers)
		for s := range scores {
			if s != winner {
				state.addWeight(s, -penalty)
			}
		}
	}
}
