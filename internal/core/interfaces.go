// Package core defines the fundamental types shared by the benchmark engine.
package core

import (
	"context"
	"sync/atomic"
	"time"
)

// Phase is the run-wide state every worker observes.
type Phase int32

const (
	PhaseWarmup Phase = iota
	PhaseMeasuring
	PhaseStopped
)

func (p Phase) String() string {
	switch p {
	case PhaseWarmup:
		return "warmup"
	case PhaseMeasuring:
		return "measuring"
	case PhaseStopped:
		return "stopped"
	}
	return "unknown"
}

// PhaseSignal broadcasts the current Phase. Only the coordinator writes it.
type PhaseSignal struct {
	v atomic.Int32
}

func NewPhaseSignal(p Phase) *PhaseSignal {
	s := &PhaseSignal{}
	s.Store(p)
	return s
}

func (s *PhaseSignal) Load() Phase   { return Phase(s.v.Load()) }
func (s *PhaseSignal) Store(p Phase) { s.v.Store(int32(p)) }

// Outcome classifies a single query attempt.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeError
	OutcomeTimedOut
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeError:
		return "error"
	case OutcomeTimedOut:
		return "timeout"
	}
	return "unknown"
}

// Result is one measured query attempt.
type Result struct {
	WorkerID int
	Phase    Phase // phase at submission time
	Start    time.Time
	Latency  time.Duration
	Outcome  Outcome
	ErrKind  string
	Err      string
}

// Connection is one logical database session owned by a single worker.
type Connection interface {
	// Query runs the statement and consumes its whole result.
	Query(ctx context.Context, query string) error
	// Close releases the connection. With discard set the underlying
	// session is dropped instead of being returned for reuse.
	Close(discard bool) error
}

// Provisioner opens connections for workers.
type Provisioner interface {
	Acquire(ctx context.Context) (Connection, error)
}

// Reporter is the interface workers use to hand results to the aggregator.
type Reporter interface {
	Report(Result)
}

// NullReporter discards all results.
var NullReporter Reporter = nullReporter{}

type nullReporter struct{}

func (nullReporter) Report(Result) {}
