package telemetry

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is the embedded default backend. It creates its schema
// idempotently on open. The GetState/SetState cycle is not atomic across a
// read-modify-write from multiple processes; concurrent router updates are
// last-write-wins on the final SetState. Accepted for a low-write-volume
// learning loop.
type SQLiteStore struct {
	db         *sql.DB
	runsTable  string
	stateTable string
	logger     *slog.Logger
}

// NewSQLite opens (creating parent directories as needed) the database at
// path and ensures the schema exists. Empty table names fall back to "runs"
// and "router_state".
func NewSQLite(path, runsTable, stateTable string) (*SQLiteStore, error) {
	if runsTable == "" {
		runsTable = "runs"
	}
	if stateTable == "" {
		stateTable = "router_state"
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating telemetry directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	s := &SQLiteStore{
		db:         db,
		runsTable:  runsTable,
		stateTable: stateTable,
		logger:     slog.Default().With("component", "telemetry-sqlite"),
	}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) ensureSchema() error {
	schema := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
  run_id INTEGER PRIMARY KEY AUTOINCREMENT,
  ts_unix REAL NOT NULL,
  query TEXT NOT NULL,
  strategy TEXT NOT NULL,
  score REAL NOT NULL,
  meta_json TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS %s (
  key TEXT PRIMARY KEY,
  value_json TEXT NOT NULL
);`, s.runsTable, s.stateTable)
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("creating sqlite schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) LogRun(ctx context.Context, rec RunRecord) error {
	if rec.TSUnix == 0 {
		rec.TSUnix = float64(time.Now().UnixNano()) / 1e9
	}
	meta, err := json.Marshal(rec.Meta)
	if err != nil {
		return fmt.Errorf("marshaling run meta: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		fmt.Sprintf("INSERT INTO %s(ts_unix, query, strategy, score, meta_json) VALUES(?,?,?,?,?)", s.runsTable),
		rec.TSUnix, rec.Query, rec.Strategy, rec.Score, string(meta),
	)
	if err != nil {
		return fmt.Errorf("inserting run record: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetState(ctx context.Context, key string, def json.RawMessage) (json.RawMessage, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT value_json FROM %s WHERE key = ?", s.stateTable), key,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return def, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading state %q: %w", key, err)
	}
	return json.RawMessage(value), nil
}

func (s *SQLiteStore) SetState(ctx context.Context, key string, value json.RawMessage) error {
	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s(key, value_json) VALUES(?,?)
ON CONFLICT(key) DO UPDATE SET value_json = excluded.value_json`, s.stateTable),
		key, string(value),
	)
	if err != nil {
		return fmt.Errorf("upserting state %q: %w", key, err)
	}
	return nil
}

// RecentRuns returns the newest run records, newest first.
func (s *SQLiteStore) RecentRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf("SELECT run_id, ts_unix, query, strategy, score, meta_json FROM %s ORDER BY run_id DESC LIMIT ?", s.runsTable),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()
	return scanRuns(rows)
}

// StrategyStats aggregates run counts and mean scores per strategy.
func (s *SQLiteStore) StrategyStats(ctx context.Context) ([]StrategyStat, error) {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf("SELECT strategy, COUNT(*), AVG(score) FROM %s GROUP BY strategy ORDER BY strategy", s.runsTable),
	)
	if err != nil {
		return nil, fmt.Errorf("aggregating runs: %w", err)
	}
	defer rows.Close()
	return scanStats(rows)
}

// Ping probes the database; used by health checks.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func scanRuns(rows *sql.Rows) ([]RunRecord, error) {
	var out []RunRecord
	for rows.Next() {
		var rec RunRecord
		var meta string
		if err := rows.Scan(&rec.RunID, &rec.TSUnix, &rec.Query, &rec.Strategy, &rec.Score, &meta); err != nil {
			return nil, fmt.Errorf("scanning run record: %w", err)
		}
		if err := json.Unmarshal([]byte(meta), &rec.Meta); err != nil {
			return nil, fmt.Errorf("decoding run meta: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanStats(rows *sql.Rows) ([]StrategyStat, error) {
	var out []StrategyStat
	for rows.Next() {
		var st StrategyStat
		if err := rows.Scan(&st.Strategy, &st.Runs, &st.MeanScore); err != nil {
			return nil, fmt.Errorf("scanning strategy stat: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}
