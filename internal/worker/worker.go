// Package worker runs one connection's closed query loop.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"pgbench/internal/core"
	"pgbench/internal/ratelimit"
)

// State is a worker's lifecycle position.
type State int32

const (
	StateConnecting State = iota
	StateRunning
	StateDraining
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Renderer produces the statement for one attempt.
type Renderer interface {
	Render(workerID, iteration int) (string, error)
}

// Config holds what a worker needs besides its provisioner and reporter.
type Config struct {
	ID      int
	Query   Renderer
	Timeout time.Duration // 0 means calls are only cut short by stop
	Limiter *ratelimit.RateLimiter
	Phase   *core.PhaseSignal
	Clock   core.Clock
}

// Worker owns one connection and runs queries on it until stopped.
// A Worker is NOT safe for concurrent use except for its accessors.
type Worker struct {
	cfg  Config
	prov core.Provisioner
	rep  core.Reporter

	state      atomic.Int32
	connected  atomic.Bool
	iterations atomic.Int64
}

// New creates a worker in StateConnecting.
func New(cfg Config, prov core.Provisioner, rep core.Reporter) *Worker {
	if cfg.Clock == nil {
		cfg.Clock = core.RealClock{}
	}
	if cfg.Phase == nil {
		cfg.Phase = core.NewPhaseSignal(core.PhaseMeasuring)
	}
	if rep == nil {
		rep = core.NullReporter
	}
	return &Worker{cfg: cfg, prov: prov, rep: rep}
}

func (w *Worker) ID() int { return w.cfg.ID }

func (w *Worker) State() State { return State(w.state.Load()) }

// Connected reports whether the first Acquire succeeded.
func (w *Worker) Connected() bool { return w.connected.Load() }

// Iterations returns the number of attempts made so far.
func (w *Worker) Iterations() int { return int(w.iterations.Load()) }

// Run acquires a connection and loops until stop is done. stop is only
// observed between attempts; an in-flight call keeps running until it
// finishes or times out. kill tears everything down immediately and the
// interrupted attempt is not reported.
//
// A connect failure, at start or when replacing a timed-out connection,
// is returned as a *core.ConnectError.
func (w *Worker) Run(stop, kill context.Context) error {
	defer w.state.Store(int32(StateClosed))

	ctx := core.ContextWithWorkerID(kill, w.cfg.ID)
	conn, err := w.prov.Acquire(ctx)
	if err != nil {
		return w.connectError(err)
	}
	w.connected.Store(true)

	discard := false
	defer func() { _ = conn.Close(discard) }()

	w.state.Store(int32(StateRunning))
	unwatch := context.AfterFunc(stop, func() {
		w.state.CompareAndSwap(int32(StateRunning), int32(StateDraining))
	})
	defer unwatch()

	for {
		if stop.Err() != nil || kill.Err() != nil {
			return nil
		}
		if w.cfg.Limiter != nil {
			if err := w.cfg.Limiter.Wait(stop); err != nil {
				return nil
			}
		}

		iteration := int(w.iterations.Add(1) - 1)
		res, recycle := w.attempt(ctx, stop, kill, conn, iteration)
		if kill.Err() != nil {
			discard = true
			return nil
		}
		if res != nil {
			w.rep.Report(*res)
		}
		if !recycle {
			continue
		}

		_ = conn.Close(true)
		if stop.Err() != nil {
			conn = nopConnection{}
			return nil
		}
		conn, err = w.prov.Acquire(ctx)
		if err != nil {
			conn = nopConnection{}
			return w.connectError(err)
		}
	}
}

// attempt runs one query. It returns nil when the outcome must not be
// reported, and whether the connection has to be replaced.
func (w *Worker) attempt(ctx, stop, kill context.Context, conn core.Connection, iteration int) (*core.Result, bool) {
	phase := w.cfg.Phase.Load()
	query, err := w.cfg.Query.Render(w.cfg.ID, iteration)
	if err != nil {
		return &core.Result{
			WorkerID: w.cfg.ID,
			Phase:    phase,
			Start:    w.cfg.Clock.Now(),
			Outcome:  core.OutcomeError,
			ErrKind:  core.KindTemplate,
			Err:      err.Error(),
		}, false
	}

	start := w.cfg.Clock.Now()
	callCtx, cancel := w.callContext(ctx, stop)
	defer cancel()

	qerr := conn.Query(callCtx, query)
	latency := w.cfg.Clock.Since(start)

	res := &core.Result{WorkerID: w.cfg.ID, Phase: phase, Start: start, Latency: latency}
	switch {
	case kill.Err() != nil:
		return nil, true
	case qerr == nil:
		res.Outcome = core.OutcomeSuccess
		return res, false
	case w.cfg.Timeout > 0 && errors.Is(callCtx.Err(), context.DeadlineExceeded):
		res.Outcome = core.OutcomeTimedOut
		res.Err = fmt.Sprintf("query exceeded %v timeout", w.cfg.Timeout)
		return res, true
	case w.cfg.Timeout == 0 && stop.Err() != nil && callCtx.Err() != nil:
		return nil, false
	}

	res.Outcome = core.OutcomeError
	res.ErrKind = core.ErrorKind(qerr)
	res.Err = qerr.Error()
	var qe *core.QueryError
	return res, errors.As(qerr, &qe) && qe.Broken()
}

// callContext bounds one call by the per-call timeout. Without a timeout
// the call is cancelled as soon as stop is done.
func (w *Worker) callContext(ctx, stop context.Context) (context.Context, context.CancelFunc) {
	if w.cfg.Timeout > 0 {
		return context.WithTimeout(ctx, w.cfg.Timeout)
	}
	callCtx, cancel := context.WithCancel(ctx)
	unwatch := context.AfterFunc(stop, cancel)
	return callCtx, func() {
		unwatch()
		cancel()
	}
}

func (w *Worker) connectError(err error) error {
	var ce *core.ConnectError
	if errors.As(err, &ce) {
		if ce.WorkerID == 0 {
			ce.WorkerID = w.cfg.ID
		}
		return ce
	}
	return &core.ConnectError{WorkerID: w.cfg.ID, Err: err}
}

// nopConnection stands in after the real connection was dropped.
type nopConnection struct{}

func (nopConnection) Query(context.Context, string) error { return core.ErrConnectFailed }
func (nopConnection) Close(bool) error                    { return nil }
