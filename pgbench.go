// Package pgbench runs closed-loop SQL benchmarks from Go code. The
// pgbench command is a thin CLI over the same pieces.
package pgbench

import (
	"context"

	"github.com/google/uuid"

	"pgbench/internal/collector"
	"pgbench/internal/config"
	"pgbench/internal/coordinator"
	"pgbench/internal/driver"
	"pgbench/internal/ratelimit"
	"pgbench/internal/template"
)

type (
	// Config describes one run.
	Config = config.Config
	// Summary is the measured result of a run.
	Summary = collector.Summary
)

// DefaultConfig returns the CLI defaults.
func DefaultConfig() Config {
	return config.Default()
}

// Run benchmarks cfg.Query against the configured database and returns
// the summary of the measured phase. Parameter files are not loaded here;
// use the CLI for --data runs.
func Run(ctx context.Context, cfg Config) (*Summary, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	query := template.NewQuery(cfg.Query, runID, nil)
	if err := query.Check(); err != nil {
		return nil, err
	}

	prov, err := driver.Open(cfg, runID)
	if err != nil {
		return nil, err
	}
	defer prov.Close()

	coord := coordinator.NewCoordinator(collector.NewCollector(), prov, query,
		coordinator.WithRunID(runID),
		coordinator.WithLimiter(ratelimit.NewRateLimiter(cfg.Rate)),
	)
	return coord.Run(ctx, cfg)
}
