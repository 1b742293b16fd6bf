// Package analytics mirrors the telemetry run log onto a Kafka stream for
// downstream consumers. Publishing is best-effort and decoupled from the
// request path; the durable record of a run is the telemetry store.
package analytics

import "time"

type EventType string

const (
	EventRun        EventType = "run"
	EventEvaluation EventType = "evaluation"
)

// RunEvent describes one routed retrieval run.
type RunEvent struct {
	Type      EventType `json:"type"`
	Query     string    `json:"query"`
	Strategy  string    `json:"strategy"`
	Score     float64   `json:"score"`
	K         int       `json:"k"`
	Results   int       `json:"results"`
	CacheHit  bool      `json:"cache_hit"`
	LatencyMs int64     `json:"latency_ms"`
	Timestamp time.Time `json:"timestamp"`
}
