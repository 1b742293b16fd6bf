package telemetry

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/searchlab/adaptive-retrieval/pkg/postgres"
)

// PostgresStore is the networked backend for shared deployments. Unlike the
// SQLite default it implements StateUpdater, serializing router updates
// with a row lock inside one transaction.
type PostgresStore struct {
	client     *postgres.Client
	runsTable  string
	stateTable string
	logger     *slog.Logger
}

// NewPostgres ensures the schema exists on the given client. Empty table
// names fall back to "retrieval_runs" and "retrieval_router_state".
func NewPostgres(client *postgres.Client, runsTable, stateTable string) (*PostgresStore, error) {
	if runsTable == "" {
		runsTable = "retrieval_runs"
	}
	if stateTable == "" {
		stateTable = "retrieval_router_state"
	}
	s := &PostgresStore{
		client:     client,
		runsTable:  runsTable,
		stateTable: stateTable,
		logger:     slog.Default().With("component", "telemetry-postgres"),
	}
	if err := s.ensureSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) ensureSchema() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  run_id BIGSERIAL PRIMARY KEY,
  ts_unix DOUBLE PRECISION NOT NULL,
  query TEXT NOT NULL,
  strategy TEXT NOT NULL,
  score DOUBLE PRECISION NOT NULL,
  meta_json JSONB NOT NULL
)`, s.runsTable),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  key TEXT PRIMARY KEY,
  value_json JSONB NOT NULL
)`, s.stateTable),
	}
	for _, stmt := range stmts {
		if _, err := s.client.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("creating postgres schema: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) LogRun(ctx context.Context, rec RunRecord) error {
	if rec.TSUnix == 0 {
		rec.TSUnix = float64(time.Now().UnixNano()) / 1e9
	}
	meta, err := json.Marshal(rec.Meta)
	if err != nil {
		return fmt.Errorf("marshaling run meta: %w", err)
	}
	_, err = s.client.DB.ExecContext(ctx,
		fmt.Sprintf("INSERT INTO %s(ts_unix, query, strategy, score, meta_json) VALUES($1,$2,$3,$4,$5)", s.runsTable),
		rec.TSUnix, rec.Query, rec.Strategy, rec.Score, string(meta),
	)
	if err != nil {
		return fmt.Errorf("inserting run record: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetState(ctx context.Context, key string, def json.RawMessage) (json.RawMessage, error) {
	var value string
	err := s.client.DB.QueryRowContext(ctx,
		fmt.Sprintf("SELECT value_json FROM %s WHERE key = $1", s.stateTable), key,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return def, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading state %q: %w", key, err)
	}
	return json.RawMessage(value), nil
}

func (s *PostgresStore) SetState(ctx context.Context, key string, value json.RawMessage) error {
	_, err := s.client.DB.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s(key, value_json) VALUES($1, $2)
ON CONFLICT (key) DO UPDATE SET value_json = EXCLUDED.value_json`, s.stateTable),
		key, string(value),
	)
	if err != nil {
		return fmt.Errorf("upserting state %q: %w", key, err)
	}
	return nil
}

// UpdateState runs fn over the current value of key inside one transaction,
// locking the row so concurrent updates serialize instead of losing a
// writer's delta.
func (s *PostgresStore) UpdateState(ctx context.Context, key string, def json.RawMessage,
	fn func(json.RawMessage) (json.RawMessage, error)) error {
	return s.client.InTx(ctx, func(tx *sql.Tx) error {
		current := def
		var value string
		err := tx.QueryRowContext(ctx,
			fmt.Sprintf("SELECT value_json FROM %s WHERE key = $1 FOR UPDATE", s.stateTable), key,
		).Scan(&value)
		switch {
		case err == sql.ErrNoRows:
		case err != nil:
			return fmt.Errorf("reading state %q: %w", key, err)
		default:
			current = json.RawMessage(value)
		}
		next, err := fn(current)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf(`INSERT INTO %s(key, value_json) VALUES($1, $2)
ON CONFLICT (key) DO UPDATE SET value_json = EXCLUDED.value_json`, s.stateTable),
			key, string(next),
		); err != nil {
			return fmt.Errorf("upserting state %q: %w", key, err)
		}
		return nil
	})
}

// RecentRuns returns the newest run records, newest first.
func (s *PostgresStore) RecentRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.client.DB.QueryContext(ctx,
		fmt.Sprintf("SELECT run_id, ts_unix, query, strategy, score, meta_json FROM %s ORDER BY run_id DESC LIMIT $1", s.runsTable),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()
	return scanRuns(rows)
}

// StrategyStats aggregates run counts and mean scores per strategy.
func (s *PostgresStore) StrategyStats(ctx context.Context) ([]StrategyStat, error) {
	rows, err := s.client.DB.QueryContext(ctx,
		fmt.Sprintf("SELECT strategy, COUNT(*), AVG(score) FROM %s GROUP BY strategy ORDER BY strategy", s.runsTable),
	)
	if err != nil {
		return nil, fmt.Errorf("aggregating runs: %w", err)
	}
	defer rows.Close()
	return scanStats(rows)
}

// Ping probes the database; used by health checks.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.client.DB.PingContext(ctx)
}

func (s *PostgresStore) Close() error {
	return s.client.Close()
}
