package router

import (
	"context"
	"encoding/json"
	"math"
	"testing"

	"github.com/searchlab/adaptive-retrieval/internal/telemetry"
)

// memStore is an in-memory telemetry.Store for router tests.
type memStore struct {
	state map[string]json.RawMessage
	runs  []telemetry.RunRecord
}

func newMemStore() *memStore {
	return &memStore{state: make(map[string]json.RawMessage)}
}

func (m *memStore) LogRun(_ context.Context, rec telemetry.RunRecord) error {
	m.runs = append(m.runs, rec)
	return nil
}

func (m *memStore) GetState(_ context.Context, key string, def json.RawMessage) (json.RawMessage, error) {
	if v, ok := m.state[key]; ok {
		return v, nil
	}
	return def, nil
}

func (m *memStore) SetState(_ context.Context, key string, value json.RawMessage) error {
	m.state[key] = value
	return nil
}

func (m *memStore) Close() error { return nil }

// txStore additionally records whether the transactional path was taken.
type txStore struct {
	*memStore
	updateCalls int
}

func (s *txStore) UpdateState(ctx context.Context, key string, def json.RawMessage,
	fn func(json.RawMessage) (json.RawMessage, error)) error {
	s.updateCalls++
	raw, err := s.GetState(ctx, key, def)
	if err != nil {
		return err
	}
	next, err := fn(raw)
	if err != nil {
		return err
	}
	return s.SetState(ctx, key, next)
}

func testVocab() (vocab, rare map[string]struct{}) {
	vocab = map[string]struct{}{
		"cache": {}, "stampede": {}, "latency": {}, "ranking": {}, "inc-49217": {},
	}
	rare = map[string]struct{}{"inc-49217": {}}
	return vocab, rare
}

func newTestRouter(store telemetry.Store) *Router {
	vocab, rare := testVocab()
	return New(vocab, rare, store, "", 0)
}

func TestFeaturizeEmptyQuery(t *testing.T) {
	vocab, rare := testVocab()
	got := Featurize("", vocab, rare)
	if got != (Features{}) {
		t.Errorf("empty query should yield zero features, got %+v", got)
	}
	got = Featurize("?!", vocab, rare)
	if got != (Features{}) {
		t.Errorf("punctuation-only query should yield zero features, got %+v", got)
	}
}

func TestFeaturizeRatios(t *testing.T) {
	vocab, rare := testVocab()
	// 4 tokens: "what" OOV, "caused" OOV, "inc-49217" rare+digit, "cache" in-vocab.
	got := Featurize("what caused INC-49217 cache", vocab, rare)
	if got.NTokens != 4 {
		t.Fatalf("NTokens = %d, want 4", got.NTokens)
	}
	if math.Abs(got.DigitRatio-0.25) > 1e-12 {
		t.Errorf("DigitRatio = %v, want 0.25", got.DigitRatio)
	}
	if math.Abs(got.OOVRatio-0.5) > 1e-12 {
		t.Errorf("OOVRatio = %v, want 0.5", got.OOVRatio)
	}
	if math.Abs(got.RareRatio-0.25) > 1e-12 {
		t.Errorf("RareRatio = %v, want 0.25", got.RareRatio)
	}
}

func TestChooseDigitHeavyQueryRoutesKeyword(t *testing.T) {
	r := newTestRouter(newMemStore())
	d, err := r.Choose(context.Background(), "INC-49217")
	if err != nil {
		t.Fatalf("Choose: %v", err)
	}
	if d.Strategy != StrategyKeyword {
		t.Errorf("strategy = %s, want keyword for a rare digit-bearing query", d.Strategy)
	}
}

func TestChooseProseQueryRoutesVector(t *testing.T) {
	r := newTestRouter(newMemStore())
	d, err := r.Choose(context.Background(), "cache stampede latency ranking stampede")
	if err != nil {
		t.Fatalf("Choose: %v", err)
	}
	if d.Strategy != StrategyVector {
		t.Errorf("strategy = %s, want vector for in-vocabulary prose", d.Strategy)
	}
}

func TestChooseTraceComplete(t *testing.T) {
	r := newTestRouter(newMemStore())
	d, err := r.Choose(context.Background(), "cache stampede")
	if err != nil {
		t.Fatalf("Choose: %v", err)
	}
	if len(d.Trace) != 3 {
		t.Fatalf("trace has %d entries, want 3", len(d.Trace))
	}
	for strat, e := range d.Trace {
		if math.Abs(e.Score-(e.Heuristic+e.Weight)) > 1e-12 {
			t.Errorf("%s: score %v != heuristic %v + weight %v", strat, e.Score, e.Heuristic, e.Weight)
		}
	}
}

func TestChooseLearnedWeightFlipsDecision(t *testing.T) {
	store := newMemStore()
	r := newTestRouter(store)
	if err := r.SaveState(context.Background(), State{WeightKeyword: 10.0, LR: DefaultLR}); err != nil {
		t.Fatalf("SaveState: %v", err)
	}
	d, err := r.Choose(context.Background(), "cache stampede latency ranking stampede")
	if err != nil {
		t.Fatalf("Choose: %v", err)
	}
	if d.Strategy != StrategyKeyword {
		t.Errorf("strategy = %s, want keyword once its weight dominates", d.Strategy)
	}
}

func TestLoadStateDefaultWhenAbsent(t *testing.T) {
	r := newTestRouter(newMemStore())
	state, err := r.LoadState(context.Background())
	if err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if state.LR != DefaultLR {
		t.Errorf("LR = %v, want default %v", state.LR, DefaultLR)
	}
	if state.WeightVector != 0 || state.WeightKeyword != 0 || state.WeightHybrid != 0 {
		t.Errorf("fresh state should have zero weights, got %+v", state)
	}
}

func TestUpdateAppliesFeedback(t *testing.T) {
	store := newMemStore()
	r := newTestRouter(store)
	scores := map[Strategy]float64{
		StrategyKeyword: 1.0,
		StrategyVector:  0.3,
		StrategyHybrid:  0.7,
	}
	state, err := r.Update(context.Background(), scores)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if math.Abs(state.WeightKeyword-DefaultLR) > 1e-12 {
		t.Errorf("winner weight = %v, want +%v", state.WeightKeyword, DefaultLR)
	}
	penalty := DefaultLR / 2.0
	if math.Abs(state.WeightVector+penalty) > 1e-12 || math.Abs(state.WeightHybrid+penalty) > 1e-12 {
		t.Errorf("loser weights = %v, %v, want -%v each", state.WeightVector, state.WeightHybrid, penalty)
	}
	// Weight mass is conserved.
	total := state.WeightVector + state.WeightKeyword + state.WeightHybrid
	if math.Abs(total) > 1e-12 {
		t.Errorf("weight sum = %v, want 0", total)
	}
	// The update persisted.
	loaded, err := r.LoadState(context.Background())
	if err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if loaded != state {
		t.Errorf("persisted state %+v != returned state %+v", loaded, state)
	}
}

func TestUpdateNoSignalIsNoOp(t *testing.T) {
	for _, scores := range []map[Strategy]float64{
		nil,
		{},
		{StrategyKeyword: 0.5, StrategyVector: 0.5, StrategyHybrid: 0.5},
	} {
		store := newMemStore()
		r := newTestRouter(store)
		state, err := r.Update(context.Background(), scores)
		if err != nil {
			t.Fatalf("Update: %v", err)
		}
		if state.WeightVector != 0 || state.WeightKeyword != 0 || state.WeightHybrid != 0 {
			t.Errorf("no-signal update changed weights: %+v", state)
		}
		if len(store.state) != 0 {
			t.Error("no-signal update should not write state")
		}
	}
}

func TestUpdateTieKeepsSmallestName(t *testing.T) {
	r := newTestRouter(newMemStore())
	// hybrid and keyword tie at the top; "hybrid" < "keyword".
	state, err := r.Update(context.Background(), map[Strategy]float64{
		StrategyKeyword: 0.9,
		StrategyHybrid:  0.9,
		StrategyVector:  0.1,
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if state.WeightHybrid <= 0 || state.WeightKeyword >= 0 {
		t.Errorf("tie should resolve to hybrid: %+v", state)
	}
}

func TestUpdateAccumulates(t *testing.T) {
	r := newTestRouter(newMemStore())
	scores := map[Strategy]float64{StrategyKeyword: 1.0, StrategyVector: 0.0}
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := r.Update(ctx, scores); err != nil {
			t.Fatalf("Update %d: %v", i, err)
		}
	}
	state, err := r.LoadState(ctx)
	if err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if math.Abs(state.WeightKeyword-3*DefaultLR) > 1e-12 {
		t.Errorf("WeightKeyword = %v, want %v after 3 wins", state.WeightKeyword, 3*DefaultLR)
	}
}

func TestUpdatePrefersTransactionalStore(t *testing.T) {
	store := &txStore{memStore: newMemStore()}
	r := newTestRouter(store)
	if _, err := r.Update(context.Background(), map[Strategy]float64{
		StrategyKeyword: 1.0, StrategyVector: 0.0,
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if store.updateCalls != 1 {
		t.Errorf("transactional path used %d times, want 1", store.updateCalls)
	}
}

func TestUpdateHonorsPersistedLR(t *testing.T) {
	r := newTestRouter(newMemStore())
	ctx := context.Background()
	if err := r.SaveState(ctx, State{LR: 0.5}); err != nil {
		t.Fatalf("SaveState: %v", err)
	}
	state, err := r.Update(ctx, map[Strategy]float64{StrategyKeyword: 1.0, StrategyVector: 0.0})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if math.Abs(state.WeightKeyword-0.5) > 1e-12 {
		t.Errorf("WeightKeyword = %v, want 0.5 from persisted lr", state.WeightKeyword)
	}
}
