// Command evaluate scores every labeled query under all three strategies,
// updates the router weights from the comparison, and prints a report.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/searchlab/adaptive-retrieval/internal/corpus"
	"github.com/searchlab/adaptive-retrieval/internal/index"
	"github.com/searchlab/adaptive-retrieval/internal/router"
	"github.com/searchlab/adaptive-retrieval/internal/searcher"
	"github.com/searchlab/adaptive-retrieval/internal/telemetry"
	"github.com/searchlab/adaptive-retrieval/pkg/config"
	"github.com/searchlab/adaptive-retrieval/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	k := flag.Int("k", 0, "top-k results (0 uses the configured default)")
	dbPath := flag.String("db", "", "override the embedded telemetry store path")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *dbPath != "" {
		cfg.Telemetry.SQLitePath = *dbPath
	}
	if *k <= 0 {
		*k = cfg.Search.DefaultK
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	report, err := evaluateAll(cfg, *k)
	if err != nil {
		slog.Error("evaluation failed", "error", err)
		os.Exit(1)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		slog.Error("encoding report failed", "error", err)
		os.Exit(1)
	}
}

func evaluateAll(cfg *config.Config, k int) (*searcher.EvalReport, error) {
	docs, err := corpus.LoadDocuments(cfg.Search.CorpusPath)
	if err != nil {
		return nil, err
	}
	labels, err := corpus.LoadLabels(cfg.Search.LabelsPath)
	if err != nil {
		return nil, err
	}
	stats := index.Build(docs, cfg.Search.RareDFThreshold)

	store, err := telemetry.New(cfg.Telemetry, cfg.Postgres)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	rt := router.New(stats.Vocab, stats.RareTerms, store, cfg.Router.StateKey, cfg.Router.LR)
	s := searcher.New(docs, stats, labels, rt, store, searcher.Options{})
	return s.EvaluateAll(context.Background(), labels, k)
}
