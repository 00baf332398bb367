package collector

import (
	"errors"
	"sync"
	"testing"
	"time"

	"pgbench/internal/core"
)

func measured(latency time.Duration, outcome core.Outcome) core.Result {
	return core.Result{Phase: core.PhaseMeasuring, Latency: latency, Outcome: outcome}
}

func TestCollector_CountsOnlyMeasuring(t *testing.T) {
	c := NewCollector()
	for i := 0; i < 7; i++ {
		c.Add(core.Result{Phase: core.PhaseWarmup, Latency: ms(1)})
	}
	for i := 0; i < 3; i++ {
		c.Add(measured(ms(2), core.OutcomeSuccess))
	}
	c.Add(core.Result{Phase: core.PhaseStopped, Latency: ms(1)})

	s := c.Finalize(RunInfo{})
	if s.Total != 3 {
		t.Errorf("expected 3 measured results, got %d", s.Total)
	}
	if s.WarmupDiscarded != 7 {
		t.Errorf("expected 7 warmup results, got %d", s.WarmupDiscarded)
	}
	if s.LateDiscarded != 1 {
		t.Errorf("expected 1 result sent after stop, got %d", s.LateDiscarded)
	}
}

func TestCollector_OutcomeBreakdown(t *testing.T) {
	c := NewCollector()
	c.Add(measured(ms(1), core.OutcomeSuccess))
	c.Add(measured(ms(1), core.OutcomeSuccess))
	c.Add(core.Result{Phase: core.PhaseMeasuring, Latency: ms(3), Outcome: core.OutcomeError, ErrKind: core.KindSyntax})
	c.Add(core.Result{Phase: core.PhaseMeasuring, Latency: ms(3), Outcome: core.OutcomeError})
	c.Add(measured(ms(2000), core.OutcomeTimedOut))

	s := c.Finalize(RunInfo{})
	if s.Success+s.Errors+s.TimedOut != s.Total {
		t.Errorf("success+errors+timeouts (%d+%d+%d) != total %d", s.Success, s.Errors, s.TimedOut, s.Total)
	}
	if s.Success != 2 || s.Errors != 2 || s.TimedOut != 1 {
		t.Errorf("unexpected breakdown %+v", s)
	}
	if s.ErrorKinds[core.KindSyntax] != 1 || s.ErrorKinds[core.KindOther] != 1 {
		t.Errorf("unexpected error kinds %v", s.ErrorKinds)
	}
	if s.ErrorRate != 60 {
		t.Errorf("expected 60%% error rate, got %.1f", s.ErrorRate)
	}
}

func TestCollector_ConcurrentAddNoLostUpdates(t *testing.T) {
	c := NewCollector()
	const workers = 50
	const perWorker = 1000

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				outcome := core.OutcomeSuccess
				if i%10 == 0 {
					outcome = core.OutcomeError
				}
				c.Add(core.Result{WorkerID: id, Phase: core.PhaseMeasuring, Latency: time.Duration(i) * time.Microsecond, Outcome: outcome})
			}
		}(w)
	}
	wg.Wait()
	c.Close()

	s := c.Finalize(RunInfo{})
	if s.Total != workers*perWorker {
		t.Errorf("expected %d results, got %d", workers*perWorker, s.Total)
	}
	if s.Errors != workers*perWorker/10 {
		t.Errorf("expected %d errors, got %d", workers*perWorker/10, s.Errors)
	}
}

func TestCollector_LateResultsDiscarded(t *testing.T) {
	c := NewCollector()
	c.Add(measured(ms(1), core.OutcomeSuccess))
	c.Close()
	c.Add(measured(ms(1), core.OutcomeSuccess))

	s := c.Finalize(RunInfo{})
	if s.Total != 1 || s.LateDiscarded != 1 {
		t.Errorf("expected 1 counted and 1 late, got total=%d late=%d", s.Total, s.LateDiscarded)
	}
}

func TestCollector_ThroughputUsesMeasuredWindow(t *testing.T) {
	clock := core.NewFakeClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	c := NewCollectorWithClock(clock)

	clock.Advance(5 * time.Second) // warmup
	c.StartMeasuring()
	for i := 0; i < 100; i++ {
		c.Add(measured(ms(1), core.OutcomeSuccess))
	}
	clock.Advance(10 * time.Second)
	c.StopMeasuring()
	clock.Advance(3 * time.Second) // drain

	s := c.Finalize(RunInfo{RunID: "r1"})
	if s.Elapsed != 10*time.Second {
		t.Errorf("expected 10s measured, got %v", s.Elapsed)
	}
	if s.Throughput != 10 {
		t.Errorf("expected 10 ops/s, got %.2f", s.Throughput)
	}
	if s.RunID != "r1" {
		t.Errorf("expected run ID r1, got %q", s.RunID)
	}
}

func TestCollector_EmptyFinalize(t *testing.T) {
	c := NewCollector()
	c.Close()
	s := c.Finalize(RunInfo{Workers: WorkerStats{Requested: 4, Connected: 4}})

	if s.Total != 0 || s.Throughput != 0 || s.ErrorRate != 0 {
		t.Errorf("expected zero summary, got %+v", s)
	}
	if s.Latency != (LatencyStats{}) {
		t.Errorf("expected zero latency, got %+v", s.Latency)
	}
	if s.ErrorKinds == nil {
		t.Error("expected ErrorKinds map to be initialized")
	}
}

func TestCollector_FinalizeIsStable(t *testing.T) {
	c := NewCollector()
	c.Add(measured(ms(1), core.OutcomeSuccess))
	first := c.Finalize(RunInfo{ConnectErrors: []error{errors.New("worker 2: connect failed: refused")}})
	second := c.Finalize(RunInfo{})

	if first != second {
		t.Error("expected Finalize to return the same summary")
	}
	if len(first.ConnectErrors) != 1 {
		t.Errorf("expected 1 connect error, got %v", first.ConnectErrors)
	}
}

func TestCollector_Snapshot(t *testing.T) {
	clock := core.NewFakeClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	c := NewCollectorWithClock(clock)
	c.Add(core.Result{Phase: core.PhaseWarmup})
	c.StartMeasuring()
	for i := 1; i <= 100; i++ {
		c.Add(measured(ms(i), core.OutcomeSuccess))
	}
	clock.Advance(2 * time.Second)

	snap := c.Snapshot()
	if snap.Total != 100 || snap.Warmup != 1 {
		t.Errorf("unexpected snapshot counts %+v", snap)
	}
	if snap.Throughput != 50 {
		t.Errorf("expected 50 ops/s, got %.1f", snap.Throughput)
	}
	// hdr histogram values are approximate
	if snap.P99 < ms(98) || snap.P99 > ms(100)+ms(1) {
		t.Errorf("p99 snapshot %v out of range", snap.P99)
	}
}
