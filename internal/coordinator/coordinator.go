// Package coordinator runs the workers through warmup, measurement and
// shutdown, and produces the run summary.
package coordinator

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"pgbench/internal/collector"
	"pgbench/internal/config"
	"pgbench/internal/core"
	"pgbench/internal/ratelimit"
	"pgbench/internal/worker"
)

const (
	// phaseTickInterval is how often we check for phase transitions.
	phaseTickInterval = 10 * time.Millisecond
)

// Logger receives human-facing status lines. Warnf lines report connect
// failures, panics and abandoned workers. *progress.Progress is one.
type Logger interface {
	Printf(format string, args ...any)
	Warnf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}
func (nopLogger) Warnf(string, ...any)  {}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLimiter shares one rate limiter across all workers.
func WithLimiter(l *ratelimit.RateLimiter) Option {
	return func(c *Coordinator) { c.limiter = l }
}

// WithPhaseHook is called on every phase transition.
func WithPhaseHook(fn func(core.Phase)) Option {
	return func(c *Coordinator) { c.onPhase = fn }
}

// WithLogger sets where status lines go.
func WithLogger(l Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// WithClock replaces the real clock (for testing).
func WithClock(clock core.Clock) Option {
	return func(c *Coordinator) { c.clock = clock }
}

// WithRunID sets the run identifier reported in the Summary.
func WithRunID(id string) Option {
	return func(c *Coordinator) { c.runID = id }
}

// Coordinator owns one benchmark run.
type Coordinator struct {
	coll  *collector.Collector
	prov  core.Provisioner
	query worker.Renderer

	limiter *ratelimit.RateLimiter
	onPhase func(core.Phase)
	logger  Logger
	clock   core.Clock
	runID   string

	phase    *core.PhaseSignal
	schedule atomic.Pointer[ratelimit.Schedule]
	started  atomic.Bool
}

func NewCoordinator(coll *collector.Collector, prov core.Provisioner, query worker.Renderer, opts ...Option) *Coordinator {
	c := &Coordinator{
		coll:   coll,
		prov:   prov,
		query:  query,
		logger: nopLogger{},
		clock:  core.RealClock{},
		phase:  core.NewPhaseSignal(core.PhaseWarmup),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.runID == "" {
		c.runID = uuid.NewString()
	}
	return c
}

// RunID returns the run identifier.
func (c *Coordinator) RunID() string { return c.runID }

// Phase returns the current run phase.
func (c *Coordinator) Phase() core.Phase { return c.phase.Load() }

// Remaining returns the time left until stop, 0 before Run.
func (c *Coordinator) Remaining() time.Duration {
	if s := c.schedule.Load(); s != nil {
		return s.Remaining()
	}
	return 0
}

// Run executes the whole benchmark and blocks until every worker has
// closed or been abandoned. Cancelling ctx stops the run early; the
// results gathered so far are still summarized. A Coordinator runs once.
func (c *Coordinator) Run(ctx context.Context, cfg config.Config) (*collector.Summary, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if c.started.Swap(true) {
		return nil, fmt.Errorf("coordinator already ran")
	}

	if cfg.Duration == 0 && strings.TrimSpace(cfg.Query) == "" {
		c.setPhase(core.PhaseStopped)
		c.coll.Close()
		return c.coll.Finalize(collector.RunInfo{
			RunID:   c.runID,
			Workers: collector.WorkerStats{Requested: cfg.Concurrency},
		}), nil
	}

	stop, stopAll := context.WithCancel(context.Background())
	defer stopAll()
	kill, killAll := context.WithCancel(context.Background())
	defer killAll()

	schedule := ratelimit.NewScheduleWithClock(cfg.Warmup, cfg.Duration, c.clock)
	c.schedule.Store(schedule)
	c.setPhase(core.PhaseWarmup)
	if schedule.Phase() == core.PhaseMeasuring {
		c.coll.StartMeasuring()
		c.setPhase(core.PhaseMeasuring)
	}

	workers := make([]*worker.Worker, cfg.Concurrency)
	var (
		wg           sync.WaitGroup
		errMu        sync.Mutex
		connectErr   []error
		failed, lost int
	)
	for i := range workers {
		w := worker.New(worker.Config{
			ID:      i + 1,
			Query:   c.query,
			Timeout: cfg.Timeout,
			Limiter: c.limiter,
			Phase:   c.phase,
			Clock:   c.clock,
		}, c.prov, c.coll)
		workers[i] = w

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer c.recoverPanic(w.ID())
			err := w.Run(stop, kill)
			if err == nil || kill.Err() != nil {
				return
			}
			c.logger.Warnf("%v", err)
			errMu.Lock()
			connectErr = append(connectErr, err)
			if w.Connected() {
				lost++
			} else {
				failed++
			}
			errMu.Unlock()
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	c.waitForStop(ctx, schedule, done)

	c.coll.StopMeasuring()
	c.setPhase(core.PhaseStopped)
	stopAll()

	abandoned := c.drain(done, workers, cfg.GracePeriod(), killAll)
	c.coll.Close()

	stats := collector.WorkerStats{Requested: cfg.Concurrency, Abandoned: len(abandoned)}
	for _, w := range workers {
		if w.Connected() {
			stats.Connected++
		}
	}

	errMu.Lock()
	stats.Failed, stats.Lost = failed, lost
	info := collector.RunInfo{
		RunID:         c.runID,
		Workers:       stats,
		ConnectErrors: append([]error(nil), connectErr...),
	}
	errMu.Unlock()

	return c.coll.Finalize(info), nil
}

// waitForStop drives warmup and measurement until the schedule ends, ctx
// is cancelled or every worker has exited.
func (c *Coordinator) waitForStop(ctx context.Context, schedule *ratelimit.Schedule, done <-chan struct{}) {
	ticker := time.NewTicker(phaseTickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Printf("Interrupted, stopping workers")
			return
		case <-done:
			c.logger.Printf("All workers exited, stopping")
			return
		case <-ticker.C:
			switch schedule.Phase() {
			case core.PhaseMeasuring:
				if c.phase.Load() == core.PhaseWarmup {
					c.coll.StartMeasuring()
					c.setPhase(core.PhaseMeasuring)
				}
			case core.PhaseStopped:
				return
			}
		}
	}
}

// drain waits up to grace for the workers to close. Stragglers are cut
// off with kill and left behind; their IDs are returned.
func (c *Coordinator) drain(done <-chan struct{}, workers []*worker.Worker, grace time.Duration, kill context.CancelFunc) []int {
	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-done:
		return nil
	case <-timer.C:
	}

	kill()
	var abandoned []int
	for _, w := range workers {
		if w.State() != worker.StateClosed {
			abandoned = append(abandoned, w.ID())
		}
	}
	sort.Ints(abandoned)
	if len(abandoned) > 0 {
		c.logger.Warnf("Grace period of %v expired, abandoning %d worker(s): %v", grace, len(abandoned), abandoned)
	}
	return abandoned
}

func (c *Coordinator) setPhase(p core.Phase) {
	c.phase.Store(p)
	if c.onPhase != nil {
		c.onPhase(p)
	}
}

// recoverPanic recovers from panics in worker goroutines and reports them as failed results.
func (c *Coordinator) recoverPanic(workerID int) {
	if r := recover(); r != nil {
		c.coll.Report(core.Result{
			WorkerID: workerID,
			Phase:    c.phase.Load(),
			Start:    c.clock.Now(),
			Outcome:  core.OutcomeError,
			ErrKind:  core.KindPanic,
			Err:      fmt.Sprintf("panic: %v", r),
		})
		c.logger.Warnf("worker %d: panic: %v", workerID, r)
	}
}
