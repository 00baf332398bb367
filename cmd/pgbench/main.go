package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"pgbench/internal/collector"
	"pgbench/internal/config"
	"pgbench/internal/coordinator"
	"pgbench/internal/core"
	"pgbench/internal/data"
	"pgbench/internal/driver"
	"pgbench/internal/progress"
	"pgbench/internal/ratelimit"
	"pgbench/internal/template"
)

const (
	ExitSuccess         = 0
	ExitThresholdFailed = 1
	ExitError           = 2
	ExitConnectFailed   = 3
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run parses args, runs the benchmark and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	code := ExitSuccess
	cmd := newRootCommand(stdout, stderr, &code)
	cmd.SetArgs(args)
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return ExitError
	}
	return code
}

func newRootCommand(stdout, stderr io.Writer, code *int) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pgbench",
		Short: "Closed-loop SQL benchmark",
		Long: `pgbench runs one query in a closed loop from a fixed number of concurrent
workers, each on its own connection. Results from the warmup period are
discarded; the measured period is reported as counts, throughput and a
latency distribution.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	flags := config.RegisterFlags(cmd.Flags())
	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		*code = execute(cmd.Context(), flags, stdout, stderr)
		return nil
	}
	return cmd
}

func execute(ctx context.Context, flags *config.Flags, stdout, stderr io.Writer) int {
	cfg, warnings, err := flags.Build()
	for _, w := range warnings {
		fmt.Fprintf(stderr, "warning: %v\n", w)
	}
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return ExitError
	}

	runID := uuid.NewString()

	query, err := loadQuery(cfg, runID)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return ExitError
	}

	var debugLogger *driver.DebugLogger
	if cfg.Verbose {
		debugLogger = driver.NewDebugLogger(stderr)
	}
	prov, err := driver.Open(cfg, runID, driver.WithDebug(debugLogger))
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return ExitError
	}
	defer prov.Close()

	coll := collector.NewCollector()
	prog := progress.NewProgress(coll, cfg.Quiet)
	prog.SetOutput(stderr)

	coord := coordinator.NewCoordinator(coll, prov, query,
		coordinator.WithRunID(runID),
		coordinator.WithLimiter(ratelimit.NewRateLimiter(cfg.Rate)),
		coordinator.WithLogger(prog),
		coordinator.WithPhaseHook(func(p core.Phase) { prog.Printf("Phase: %s", p) }),
	)
	prog.SetStatus(coord)

	prog.Printf("pgbench starting: %d workers, warmup %v, duration %v, timeout %v, %s at %s (run %s)",
		cfg.Concurrency, cfg.Warmup, cfg.Duration, cfg.Timeout, prov.Driver(), target(cfg), runID)

	prog.Start()
	summary, err := coord.Run(ctx, cfg)
	prog.Stop()
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return ExitError
	}

	var thresholdResults *collector.ThresholdResults
	if cfg.Thresholds != nil {
		thresholdResults = cfg.Thresholds.Check(summary)
	}

	if cfg.Output == config.OutputJSON {
		if err := collector.FormatJSON(stdout, summary, thresholdResults); err != nil {
			fmt.Fprintf(stderr, "error: %v\n", err)
			return ExitError
		}
	} else {
		collector.FormatText(stdout, summary, thresholdResults)
	}

	interrupted := ctx.Err() != nil
	switch {
	case summary.Degraded() || len(summary.ConnectErrors) > 0:
		fmt.Fprintf(stderr, "\n%s\n", degradedMessage(summary.Workers))
		return ExitConnectFailed
	case interrupted:
		return ExitSuccess
	case thresholdResults != nil && !thresholdResults.Passed:
		if cfg.Output == config.OutputText {
			fmt.Fprintln(stderr, "\nThreshold check failed!")
		}
		return ExitThresholdFailed
	}
	return ExitSuccess
}

// loadQuery prepares the query template and its parameter rows.
func loadQuery(cfg config.Config, runID string) (*template.Query, error) {
	var src *data.Source
	if cfg.DataFile != "" {
		mode, err := data.ParseMode(cfg.DataMode)
		if err != nil {
			return nil, err
		}
		src, err = data.LoadFile(cfg.DataFile, mode, "")
		if err != nil {
			return nil, err
		}
	}

	query := template.NewQuery(cfg.Query, runID, src)
	if cfg.Query != "" {
		if err := query.Check(); err != nil {
			return nil, fmt.Errorf("query template: %w", err)
		}
	}
	return query, nil
}

// degradedMessage explains why fewer workers ran than were requested.
func degradedMessage(w collector.WorkerStats) string {
	var parts []string
	if w.Failed > 0 {
		parts = append(parts, fmt.Sprintf("%d of %d workers failed to connect", w.Failed, w.Requested))
	}
	if w.Lost > 0 {
		parts = append(parts, fmt.Sprintf("%d of %d workers stopped after failing to reconnect", w.Lost, w.Requested))
	}
	if len(parts) == 0 {
		parts = append(parts, fmt.Sprintf("only %d of %d workers connected", w.Connected, w.Requested))
	}
	return strings.Join(parts, "; ")
}

func target(cfg config.Config) string {
	if name, _ := driver.Name(cfg.Driver); name == driver.DriverSQLite {
		if cfg.Database == "" {
			return ":memory:"
		}
		return cfg.Database
	}
	return cfg.Addr()
}
