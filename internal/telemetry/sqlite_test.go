package telemetry

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/searchlab/adaptive-retrieval/pkg/config"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "telemetry.sqlite")
	s, err := NewSQLite(path, "", "")
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStateRoundtrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	def := json.RawMessage(`{"lr":0.25}`)
	got, err := s.GetState(ctx, "router_state:v1", def)
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if string(got) != string(def) {
		t.Errorf("absent key should return default, got %s", got)
	}

	val := json.RawMessage(`{"weight_keyword":0.25,"lr":0.25}`)
	if err := s.SetState(ctx, "router_state:v1", val); err != nil {
		t.Fatalf("SetState: %v", err)
	}
	got, err = s.GetState(ctx, "router_state:v1", def)
	if err != nil {
		t.Fatalf("GetState after set: %v", err)
	}
	if string(got) != string(val) {
		t.Errorf("GetState = %s, want %s", got, val)
	}

	// Upsert overwrites in place.
	val2 := json.RawMessage(`{"weight_keyword":0.5,"lr":0.25}`)
	if err := s.SetState(ctx, "router_state:v1", val2); err != nil {
		t.Fatalf("SetState upsert: %v", err)
	}
	got, _ = s.GetState(ctx, "router_state:v1", def)
	if string(got) != string(val2) {
		t.Errorf("upsert result = %s, want %s", got, val2)
	}
}

func TestSQLiteLogRunAndRead(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	recs := []RunRecord{
		{Query: "first", Strategy: "keyword", Score: 1.0, Meta: map[string]any{"k": 5.0}},
		{Query: "second", Strategy: "vector", Score: 0.5},
		{Query: "third", Strategy: "keyword", Score: 0.0},
	}
	for _, rec := range recs {
		if err := s.LogRun(ctx, rec); err != nil {
			t.Fatalf("LogRun(%q): %v", rec.Query, err)
		}
	}

	runs, err := s.RecentRuns(ctx, 2)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("got %d runs, want 2", len(runs))
	}
	// Newest first, run_id monotonic.
	if runs[0].Query != "third" || runs[1].Query != "second" {
		t.Errorf("unexpected order: %s, %s", runs[0].Query, runs[1].Query)
	}
	if runs[0].RunID <= runs[1].RunID {
		t.Errorf("run ids not monotonic: %d <= %d", runs[0].RunID, runs[1].RunID)
	}
	if runs[0].TSUnix == 0 {
		t.Error("zero timestamp should be replaced at insert")
	}

	stats, err := s.StrategyStats(ctx)
	if err != nil {
		t.Fatalf("StrategyStats: %v", err)
	}
	byStrategy := make(map[string]StrategyStat, len(stats))
	for _, st := range stats {
		byStrategy[st.Strategy] = st
	}
	if kw := byStrategy["keyword"]; kw.Runs != 2 || kw.MeanScore != 0.5 {
		t.Errorf("keyword stats = %+v, want 2 runs mean 0.5", kw)
	}
	if vec := byStrategy["vector"]; vec.Runs != 1 || vec.MeanScore != 0.5 {
		t.Errorf("vector stats = %+v, want 1 run mean 0.5", vec)
	}
}

func TestSQLiteMetaRoundtrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	meta := map[string]any{"cache_hit": true, "top_doc_ids": []any{"d1", "d2"}}
	if err := s.LogRun(ctx, RunRecord{Query: "q", Strategy: "hybrid", Meta: meta}); err != nil {
		t.Fatalf("LogRun: %v", err)
	}
	runs, err := s.RecentRuns(ctx, 1)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	if got := runs[0].Meta["cache_hit"]; got != true {
		t.Errorf("meta cache_hit = %v, want true", got)
	}
}

func TestSQLitePing(t *testing.T) {
	s := newTestStore(t)
	if err := s.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}

func TestNewBackendSelection(t *testing.T) {
	t.Run("sqlite", func(t *testing.T) {
		cfg := config.TelemetryConfig{
			Backend:    config.BackendSQLite,
			SQLitePath: filepath.Join(t.TempDir(), "t.sqlite"),
		}
		store, err := New(cfg, config.PostgresConfig{})
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		defer store.Close()
		if _, ok := store.(*SQLiteStore); !ok {
			t.Errorf("got %T, want *SQLiteStore", store)
		}
	})

	t.Run("postgres without connection info", func(t *testing.T) {
		cfg := config.TelemetryConfig{Backend: config.BackendPostgres}
		if _, err := New(cfg, config.PostgresConfig{}); err == nil {
			t.Fatal("expected error for postgres backend without host/database")
		}
	})

	t.Run("unknown backend", func(t *testing.T) {
		if _, err := New(config.TelemetryConfig{Backend: "etcd"}, config.PostgresConfig{}); err == nil {
			t.Fatal("expected error for unknown backend")
		}
	})
}
