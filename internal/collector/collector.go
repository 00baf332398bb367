// Package collector aggregates query results and computes the run summary.
package collector

import (
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"pgbench/internal/core"
)

// Collector is the single aggregation point shared by all workers.
// Add is serialized by a mutex and never drops a result.
type Collector struct {
	mu    sync.Mutex
	clock core.Clock

	latencies  []time.Duration
	success    int
	errors     int
	timedOut   int
	errorKinds map[string]int

	warmupDiscarded int
	lateDiscarded   int

	// live view for progress output, microseconds
	hist *hdrhistogram.Histogram

	measureStart time.Time
	measureEnd   time.Time
	closed       bool
	summary      *Summary
}

// NewCollector creates a Collector using the real clock.
func NewCollector() *Collector {
	return NewCollectorWithClock(core.RealClock{})
}

// NewCollectorWithClock creates a Collector with a custom clock (for testing).
func NewCollectorWithClock(clock core.Clock) *Collector {
	return &Collector{
		clock:      clock,
		latencies:  make([]time.Duration, 0, 4096),
		errorKinds: make(map[string]int),
		hist:       hdrhistogram.New(1, int64(10*time.Minute/time.Microsecond), 3),
	}
}

// Report implements core.Reporter.
func (c *Collector) Report(r core.Result) {
	c.Add(r)
}

// Add records one result. Only results tagged PhaseMeasuring are counted;
// warmup results, results sent after stop and anything arriving after Close
// are tallied separately.
func (c *Collector) Add(r core.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.closed, r.Phase == core.PhaseStopped:
		c.lateDiscarded++
		return
	case r.Phase != core.PhaseMeasuring:
		c.warmupDiscarded++
		return
	}

	c.latencies = append(c.latencies, r.Latency)
	switch r.Outcome {
	case core.OutcomeSuccess:
		c.success++
	case core.OutcomeTimedOut:
		c.timedOut++
	default:
		c.errors++
		kind := r.ErrKind
		if kind == "" {
			kind = core.KindOther
		}
		c.errorKinds[kind]++
	}
	_ = c.hist.RecordValue(r.Latency.Microseconds()) // out-of-range values only skew the live view
}

// StartMeasuring marks the beginning of the measured window.
func (c *Collector) StartMeasuring() {
	c.mu.Lock()
	c.measureStart = c.clock.Now()
	c.mu.Unlock()
}

// StopMeasuring marks the end of the measured window.
func (c *Collector) StopMeasuring() {
	c.mu.Lock()
	if !c.measureStart.IsZero() && c.measureEnd.IsZero() {
		c.measureEnd = c.clock.Now()
	}
	c.mu.Unlock()
}

// Close stops accepting results. Later Adds are counted as late and discarded.
func (c *Collector) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

// Count returns the number of counted results so far.
func (c *Collector) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.latencies)
}

// Latencies returns a copy of the retained latency samples.
func (c *Collector) Latencies() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	result := make([]time.Duration, len(c.latencies))
	copy(result, c.latencies)
	return result
}

// Elapsed returns the measured window. While measuring it runs up to now.
func (c *Collector) Elapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.elapsedLocked()
}

func (c *Collector) elapsedLocked() time.Duration {
	if c.measureStart.IsZero() {
		return 0
	}
	if !c.measureEnd.IsZero() {
		return c.measureEnd.Sub(c.measureStart)
	}
	return c.clock.Since(c.measureStart)
}

// Snapshot is a cheap live view used for progress output.
type Snapshot struct {
	Total      int
	Success    int
	Errors     int
	TimedOut   int
	Warmup     int
	Elapsed    time.Duration
	Throughput float64
	P50        time.Duration
	P99        time.Duration
}

// Snapshot returns current counters without sorting the sample set.
func (c *Collector) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Snapshot{
		Total:    len(c.latencies),
		Success:  c.success,
		Errors:   c.errors,
		TimedOut: c.timedOut,
		Warmup:   c.warmupDiscarded,
		Elapsed:  c.elapsedLocked(),
	}
	if s.Elapsed > 0 {
		s.Throughput = float64(s.Total) / s.Elapsed.Seconds()
	}
	if c.hist.TotalCount() > 0 {
		s.P50 = time.Duration(c.hist.ValueAtQuantile(50)) * time.Microsecond
		s.P99 = time.Duration(c.hist.ValueAtQuantile(99)) * time.Microsecond
	}
	return s
}

// Finalize computes the Summary. It is meant to be called once after all
// workers are closed; later calls return the same Summary.
func (c *Collector) Finalize(info RunInfo) *Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.summary != nil {
		return c.summary
	}
	if c.measureEnd.IsZero() && !c.measureStart.IsZero() {
		c.measureEnd = c.clock.Now()
	}

	s := &Summary{
		RunID:           info.RunID,
		Workers:         info.Workers,
		Total:           len(c.latencies),
		Success:         c.success,
		Errors:          c.errors,
		TimedOut:        c.timedOut,
		Elapsed:         c.elapsedLocked(),
		Latency:         ComputeLatency(c.latencies),
		ErrorKinds:      make(map[string]int, len(c.errorKinds)),
		WarmupDiscarded: c.warmupDiscarded,
		LateDiscarded:   c.lateDiscarded,
	}
	for k, v := range c.errorKinds {
		s.ErrorKinds[k] = v
	}
	for _, err := range info.ConnectErrors {
		s.ConnectErrors = append(s.ConnectErrors, err.Error())
	}
	if s.Total > 0 {
		s.ErrorRate = float64(s.Errors+s.TimedOut) * 100 / float64(s.Total)
	}
	if s.Elapsed > 0 {
		s.Throughput = float64(s.Total) / s.Elapsed.Seconds()
	}

	c.summary = s
	return s
}
