// Package handler exposes the search orchestrator over HTTP.
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/searchlab/adaptive-retrieval/internal/searcher"
	"github.com/searchlab/adaptive-retrieval/internal/telemetry"
	"github.com/searchlab/adaptive-retrieval/pkg/logger"
)

type Handler struct {
	searcher *searcher.Searcher
	store    telemetry.Store
	defaultK int
	maxK     int
	logger   *slog.Logger
}

func New(s *searcher.Searcher, store telemetry.Store, defaultK, maxK int) *Handler {
	return &Handler{
		searcher: s,
		store:    store,
		defaultK: defaultK,
		maxK:     maxK,
		logger:   slog.Default().With("component", "search-handler"),
	}
}

// Search handles GET /search?q=...&k=...
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	query := r.URL.Query().Get("q")
	if query == "" {
		h.writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}
	k := h.defaultK
	if kStr := r.URL.Query().Get("k"); kStr != "" {
		parsed, err := strconv.Atoi(kStr)
		if err != nil || parsed < 0 {
			h.writeError(w, http.StatusBadRequest, "k must be a non-negative integer")
			return
		}
		if parsed > h.maxK {
			parsed = h.maxK
		}
		k = parsed
	}

	out, err := h.searcher.RunOnce(ctx, query, k)
	if err != nil {
		log.Error("search run failed", "query", query, "error", err)
		h.writeError(w, http.StatusInternalServerError, "search failed")
		return
	}
	h.writeJSON(w, http.StatusOK, out)
}

// Runs handles GET /runs?limit=... when the store supports run reads.
func (h *Handler) Runs(w http.ResponseWriter, r *http.Request) {
	reader, ok := h.store.(telemetry.RunReader)
	if !ok {
		h.writeError(w, http.StatusNotImplemented, "run log reads not supported by this backend")
		return
	}
	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	runs, err := reader.RecentRuns(r.Context(), limit)
	if err != nil {
		h.logger.Error("reading run log failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "run log read failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// Stats handles GET /stats when the store supports run reads.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	reader, ok := h.store.(telemetry.RunReader)
	if !ok {
		h.writeError(w, http.StatusNotImplemented, "run log reads not supported by this backend")
		return
	}
	stats, err := reader.StrategyStats(r.Context())
	if err != nil {
		h.logger.Error("aggregating run log failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "run log aggregation failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"strategies": stats})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]string{"error": msg})
}
