// Package config loads and validates application configuration from YAML
// files with environment-variable overrides. Configuration is an explicit
// struct handed to constructors; there is no process-wide mutable state.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	apperrors "github.com/searchlab/adaptive-retrieval/pkg/errors"
)

// Telemetry backend selectors.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Search    SearchConfig    `yaml:"search"`
	Router    RouterConfig    `yaml:"router"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings for the search service.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// TelemetryConfig selects the run-log/state backend and its table layout.
// Backend "sqlite" is the embedded default; "postgres" targets a shared
// database and requires the postgres section to be filled in.
type TelemetryConfig struct {
	Backend    string `yaml:"backend"`
	SQLitePath string `yaml:"sqlitePath"`
	RunsTable  string `yaml:"runsTable"`
	StateTable string `yaml:"stateTable"`
}

// PostgresConfig holds PostgreSQL connection parameters for the networked
// telemetry backend.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// RedisConfig holds connection parameters for the optional retrieval
// result cache.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// KafkaConfig holds broker settings for the optional run-event stream.
type KafkaConfig struct {
	Enabled       bool     `yaml:"enabled"`
	Brokers       []string `yaml:"brokers"`
	RunEventTopic string   `yaml:"runEventTopic"`
}

// SearchConfig controls retrieval depth and corpus locations.
type SearchConfig struct {
	DefaultK        int    `yaml:"defaultK"`
	MaxK            int    `yaml:"maxK"`
	RareDFThreshold int    `yaml:"rareDfThreshold"`
	CorpusPath      string `yaml:"corpusPath"`
	LabelsPath      string `yaml:"labelsPath"`
}

// RouterConfig controls the adaptive router's persisted state. StateKey is
// versioned so the state shape can evolve behind a new key without breaking
// old readers.
type RouterConfig struct {
	StateKey string  `yaml:"stateKey"`
	LR       float64 `yaml:"lr"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided), applies environment-variable
// overrides, and validates the result.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports configuration errors before any retrieval work begins.
func (c *Config) Validate() error {
	switch c.Telemetry.Backend {
	case BackendSQLite:
		if c.Telemetry.SQLitePath == "" {
			return fmt.Errorf("%w: telemetry backend %q requires sqlitePath", apperrors.ErrConfig, BackendSQLite)
		}
	case BackendPostgres:
		if c.Postgres.Host == "" || c.Postgres.Database == "" {
			return fmt.Errorf("%w: telemetry backend %q requires postgres host and database",
				apperrors.ErrConfig, BackendPostgres)
		}
	default:
		return fmt.Errorf("%w: unknown telemetry backend %q", apperrors.ErrConfig, c.Telemetry.Backend)
	}
	if c.Router.LR <= 0 {
		return fmt.Errorf("%w: router lr must be positive, got %v", apperrors.ErrConfig, c.Router.LR)
	}
	if c.Search.DefaultK < 0 || c.Search.MaxK < c.Search.DefaultK {
		return fmt.Errorf("%w: search defaultK/maxK out of range", apperrors.ErrConfig)
	}
	return nil
}

// defaultConfig returns a Config with local-development defaults.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			RequestTimeout:  10 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Telemetry: TelemetryConfig{
			Backend:    BackendSQLite,
			SQLitePath: "runs/adaptive_retrieval.sqlite",
			RunsTable:  "runs",
			StateTable: "router_state",
		},
		Postgres: PostgresConfig{
			Port:            5432,
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			Enabled:  false,
			Addr:     "localhost:6379",
			DB:       0,
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
		},
		Kafka: KafkaConfig{
			Enabled:       false,
			Brokers:       []string{"localhost:9092"},
			RunEventTopic: "retrieval-run-events",
		},
		Search: SearchConfig{
			DefaultK:        5,
			MaxK:            50,
			RareDFThreshold: 1,
			CorpusPath:      "data/corpus.jsonl",
			LabelsPath:      "data/labels.jsonl",
		},
		Router: RouterConfig{
			StateKey: "router_state:v1",
			LR:       0.25,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads ARR_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ARR_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("ARR_TELEMETRY_BACKEND"); v != "" {
		cfg.Telemetry.Backend = strings.ToLower(strings.TrimSpace(v))
	}
	if v := os.Getenv("ARR_TELEMETRY_SQLITE_PATH"); v != "" {
		cfg.Telemetry.SQLitePath = v
	}
	if v := os.Getenv("ARR_TELEMETRY_RUNS_TABLE"); v != "" {
		cfg.Telemetry.RunsTable = v
	}
	if v := os.Getenv("ARR_TELEMETRY_STATE_TABLE"); v != "" {
		cfg.Telemetry.StateTable = v
	}
	if v := os.Getenv("ARR_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("ARR_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("ARR_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("ARR_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("ARR_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("ARR_POSTGRES_SSLMODE"); v != "" {
		cfg.Postgres.SSLMode = v
	}
	if v := os.Getenv("ARR_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
		cfg.Redis.Enabled = true
	}
	if v := os.Getenv("ARR_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("ARR_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
		cfg.Kafka.Enabled = true
	}
	if v := os.Getenv("ARR_ROUTER_STATE_KEY"); v != "" {
		cfg.Router.StateKey = v
	}
	if v := os.Getenv("ARR_ROUTER_LR"); v != "" {
		if lr, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Router.LR = lr
		}
	}
	if v := os.Getenv("ARR_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("ARR_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
