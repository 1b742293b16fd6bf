// Package tracing provides lightweight spans that propagate a trace ID
// through Go contexts and log timings as structured slog records.
package tracing

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type contextKey struct{}

// Span represents a timed operation within a trace.
type Span struct {
	Name    string
	TraceID string
	start   time.Time
	mu      sync.Mutex
	attrs   []any
}

// StartSpan creates a root span with the given trace ID and stores it in
// the returned context.
func StartSpan(ctx context.Context, name string, traceID string) (context.Context, *Span) {
	span := &Span{Name: name, TraceID: traceID, start: time.Now()}
	return context.WithValue(ctx, contextKey{}, span), span
}

// StartChildSpan creates a span that inherits the trace ID from the span in
// ctx, if any.
func StartChildSpan(ctx context.Context, name string) (context.Context, *Span) {
	child := &Span{Name: name, start: time.Now()}
	if parent := FromContext(ctx); parent != nil {
		child.TraceID = parent.TraceID
	}
	return context.WithValue(ctx, contextKey{}, child), child
}

// SetAttr attaches a key-value attribute logged when the span ends.
func (s *Span) SetAttr(key string, value any) {
	s.mu.Lock()
	s.attrs = append(s.attrs, key, value)
	s.mu.Unlock()
}

// End logs the span with its duration and attributes.
func (s *Span) End() {
	s.mu.Lock()
	attrs := append([]any{
		"trace_id", s.TraceID,
		"span", s.Name,
		"duration_ms", time.Since(s.start).Milliseconds(),
	}, s.attrs...)
	s.mu.Unlock()
	slog.Debug("span", attrs...)
}

// FromContext extracts the current Span from ctx, or nil if none.
func FromContext(ctx context.Context) *Span {
	if span, ok := ctx.Value(contextKey{}).(*Span); ok {
		return span
	}
	return nil
}
