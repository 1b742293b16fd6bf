// Package telemetry makes router state and run history durable. One
// capability-set interface covers both backends: the embedded SQLite store
// (default, local/offline) and the networked PostgreSQL store (optional,
// shared/production). Backends are chosen explicitly at construction time
// from configuration, never reflected upon at runtime.
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/searchlab/adaptive-retrieval/pkg/config"
	apperrors "github.com/searchlab/adaptive-retrieval/pkg/errors"
	"github.com/searchlab/adaptive-retrieval/pkg/postgres"
)

// RunRecord is one append-only run log entry. RunID is assigned by the
// store; a zero TSUnix is replaced with the current time.
type RunRecord struct {
	RunID    int64          `json:"run_id"`
	TSUnix   float64        `json:"ts_unix"`
	Query    string         `json:"query"`
	Strategy string         `json:"strategy"`
	Score    float64        `json:"score"`
	Meta     map[string]any `json:"meta"`
}

// StrategyStat aggregates the run log per strategy.
type StrategyStat struct {
	Strategy  string  `json:"strategy"`
	Runs      int64   `json:"runs"`
	MeanScore float64 `json:"mean_score"`
}

// Store is the persistence interface used by the router and the search
// orchestrator. Storage errors propagate to the caller unchanged; the core
// never retries.
type Store interface {
	// LogRun appends one run record. The stored run_id is monotonic.
	LogRun(ctx context.Context, rec RunRecord) error
	// GetState returns the stored blob for key, or def if the key is
	// absent. It never creates the key.
	GetState(ctx context.Context, key string, def json.RawMessage) (json.RawMessage, error)
	// SetState upserts key → value in a single atomic statement.
	SetState(ctx context.Context, key string, value json.RawMessage) error
	Close() error
}

// StateUpdater is an optional capability: backends that can serialize a
// read-modify-write cycle expose it, and the router prefers it over the
// plain GetState/SetState sequence (which is last-write-wins under
// concurrent updates).
type StateUpdater interface {
	UpdateState(ctx context.Context, key string, def json.RawMessage,
		fn func(json.RawMessage) (json.RawMessage, error)) error
}

// RunReader is an optional capability for observational queries over the
// run log.
type RunReader interface {
	RecentRuns(ctx context.Context, limit int) ([]RunRecord, error)
	StrategyStats(ctx context.Context) ([]StrategyStat, error)
}

// New selects and constructs a backend from configuration. Selecting the
// postgres backend without connection info fails here, before any
// retrieval work begins.
func New(cfg config.TelemetryConfig, pg config.PostgresConfig) (Store, error) {
	switch cfg.Backend {
	case "", config.BackendSQLite:
		return NewSQLite(cfg.SQLitePath, cfg.RunsTable, cfg.StateTable)
	case config.BackendPostgres:
		if pg.Host == "" || pg.Database == "" {
			return nil, fmt.Errorf("%w: postgres telemetry backend requires host and database",
				apperrors.ErrConfig)
		}
		client, err := postgres.New(pg)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", apperrors.ErrStorage, err)
		}
		return NewPostgres(client, cfg.RunsTable, cfg.StateTable)
	default:
		return nil, fmt.Errorf("%w: unknown telemetry backend %q", apperrors.ErrConfig, cfg.Backend)
	}
}
