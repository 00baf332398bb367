package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"pgbench/internal/core"
	"pgbench/internal/ratelimit"
)

type staticQuery string

func (q staticQuery) Render(int, int) (string, error) { return string(q), nil }

type renderFunc func(workerID, iteration int) (string, error)

func (f renderFunc) Render(workerID, iteration int) (string, error) { return f(workerID, iteration) }

type recorder struct {
	mu      sync.Mutex
	results []core.Result
}

func (r *recorder) Report(res core.Result) {
	r.mu.Lock()
	r.results = append(r.results, res)
	r.mu.Unlock()
}

func (r *recorder) all() []core.Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]core.Result(nil), r.results...)
}

func newWorker(prov core.Provisioner, rep core.Reporter, timeout time.Duration) *Worker {
	return New(Config{ID: 1, Query: staticQuery("SELECT 1"), Timeout: timeout}, prov, rep)
}

func TestWorker_ConnectFailure(t *testing.T) {
	prov := &core.FakeProvisioner{
		AcquireFunc: func(context.Context, int) error { return errors.New("connection refused") },
	}
	rec := &recorder{}
	w := New(Config{ID: 3, Query: staticQuery("SELECT 1")}, prov, rec)

	err := w.Run(context.Background(), context.Background())
	if !errors.Is(err, core.ErrConnectFailed) {
		t.Fatalf("expected ErrConnectFailed, got %v", err)
	}
	var ce *core.ConnectError
	if !errors.As(err, &ce) || ce.WorkerID != 3 {
		t.Errorf("expected ConnectError for worker 3, got %v", err)
	}
	if w.State() != StateClosed {
		t.Errorf("State() = %v, want closed", w.State())
	}
	if w.Connected() || w.Iterations() != 0 || prov.Queries() != 0 {
		t.Errorf("no query should run: connected=%v iterations=%d queries=%d",
			w.Connected(), w.Iterations(), prov.Queries())
	}
	if len(rec.all()) != 0 {
		t.Error("connect failure must not produce results")
	}
}

func TestWorker_LoopsUntilStopped(t *testing.T) {
	stop, cancel := context.WithCancel(context.Background())
	defer cancel()

	prov := &core.FakeProvisioner{}
	prov.QueryFunc = func(ctx context.Context, query string) error {
		if query != "SELECT 1" {
			t.Errorf("unexpected query %q", query)
		}
		if prov.Queries() == 5 {
			cancel()
		}
		return nil
	}
	rec := &recorder{}
	w := newWorker(prov, rec, time.Second)

	if err := w.Run(stop, context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	results := rec.all()
	if len(results) != 5 {
		t.Fatalf("expected 5 results, got %d", len(results))
	}
	for _, r := range results {
		if r.Outcome != core.OutcomeSuccess || r.WorkerID != 1 || r.Phase != core.PhaseMeasuring {
			t.Errorf("unexpected result %+v", r)
		}
	}
	if w.Iterations() != 5 {
		t.Errorf("Iterations() = %d, want 5", w.Iterations())
	}
	if prov.Released() != 1 || prov.Discarded() != 0 {
		t.Errorf("expected clean release, released=%d discarded=%d", prov.Released(), prov.Discarded())
	}
	if w.State() != StateClosed {
		t.Errorf("State() = %v, want closed", w.State())
	}
}

func TestWorker_TagsPhaseAtSend(t *testing.T) {
	stop, cancel := context.WithCancel(context.Background())
	defer cancel()

	phase := core.NewPhaseSignal(core.PhaseWarmup)
	prov := &core.FakeProvisioner{}
	prov.QueryFunc = func(context.Context, string) error {
		switch prov.Queries() {
		case 2:
			phase.Store(core.PhaseMeasuring) // flips while the second call is in flight
		case 4:
			cancel()
		}
		return nil
	}
	rec := &recorder{}
	w := New(Config{ID: 1, Query: staticQuery("SELECT 1"), Phase: phase}, prov, rec)

	if err := w.Run(stop, context.Background()); err != nil {
		t.Fatal(err)
	}

	want := []core.Phase{core.PhaseWarmup, core.PhaseWarmup, core.PhaseMeasuring, core.PhaseMeasuring}
	results := rec.all()
	if len(results) != len(want) {
		t.Fatalf("expected %d results, got %d", len(want), len(results))
	}
	for i, r := range results {
		if r.Phase != want[i] {
			t.Errorf("result %d phase = %v, want %v", i, r.Phase, want[i])
		}
	}
}

func TestWorker_TimeoutRecyclesConnection(t *testing.T) {
	stop, cancel := context.WithCancel(context.Background())
	defer cancel()

	prov := &core.FakeProvisioner{}
	prov.QueryFunc = func(ctx context.Context, _ string) error {
		if prov.Queries() == 1 {
			<-ctx.Done()
			return ctx.Err()
		}
		cancel()
		return nil
	}
	rec := &recorder{}
	w := newWorker(prov, rec, 10*time.Millisecond)

	if err := w.Run(stop, context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	results := rec.all()
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Outcome != core.OutcomeTimedOut {
		t.Errorf("first outcome = %v, want timeout", results[0].Outcome)
	}
	if results[0].Latency < 10*time.Millisecond {
		t.Errorf("timed out latency %v shorter than the timeout", results[0].Latency)
	}
	if results[1].Outcome != core.OutcomeSuccess {
		t.Errorf("second outcome = %v, want success", results[1].Outcome)
	}
	if prov.Acquired() != 2 || prov.Discarded() != 1 || prov.Released() != 2 {
		t.Errorf("expected one recycled connection: acquired=%d discarded=%d released=%d",
			prov.Acquired(), prov.Discarded(), prov.Released())
	}
}

func TestWorker_ReacquireFailureIsFatal(t *testing.T) {
	prov := &core.FakeProvisioner{
		AcquireFunc: func(_ context.Context, n int) error {
			if n > 1 {
				return errors.New("too many clients")
			}
			return nil
		},
		QueryFunc: func(ctx context.Context, _ string) error {
			<-ctx.Done()
			return ctx.Err()
		},
	}
	rec := &recorder{}
	w := newWorker(prov, rec, 5*time.Millisecond)

	err := w.Run(context.Background(), context.Background())
	if !errors.Is(err, core.ErrConnectFailed) {
		t.Fatalf("expected ErrConnectFailed, got %v", err)
	}
	results := rec.all()
	if len(results) != 1 || results[0].Outcome != core.OutcomeTimedOut {
		t.Errorf("expected a single timeout result, got %+v", results)
	}
	if !w.Connected() {
		t.Error("worker connected initially")
	}
}

func TestWorker_ErrorKindsAndBrokenConnection(t *testing.T) {
	stop, cancel := context.WithCancel(context.Background())
	defer cancel()

	prov := &core.FakeProvisioner{}
	prov.QueryFunc = func(context.Context, string) error {
		switch prov.Queries() {
		case 1:
			return &core.QueryError{Kind: core.KindSyntax, Err: errors.New("syntax error")}
		case 2:
			return &core.QueryError{Kind: core.KindConnection, Err: errors.New("connection reset")}
		case 3:
			return errors.New("something else")
		}
		cancel()
		return nil
	}
	rec := &recorder{}
	w := newWorker(prov, rec, time.Second)

	if err := w.Run(stop, context.Background()); err != nil {
		t.Fatal(err)
	}

	results := rec.all()
	wantKinds := []string{core.KindSyntax, core.KindConnection, core.KindOther, ""}
	if len(results) != len(wantKinds) {
		t.Fatalf("expected %d results, got %d", len(wantKinds), len(results))
	}
	for i, r := range results {
		if r.ErrKind != wantKinds[i] {
			t.Errorf("result %d kind = %q, want %q", i, r.ErrKind, wantKinds[i])
		}
	}
	if results[0].Err != "syntax error" {
		t.Errorf("Err = %q", results[0].Err)
	}
	if prov.Acquired() != 2 || prov.Discarded() != 1 {
		t.Errorf("broken connection should be replaced: acquired=%d discarded=%d",
			prov.Acquired(), prov.Discarded())
	}
}

func TestWorker_StopCancelsUnboundedCall(t *testing.T) {
	stop, cancel := context.WithCancel(context.Background())
	defer cancel()

	prov := &core.FakeProvisioner{}
	prov.QueryFunc = func(ctx context.Context, _ string) error {
		cancel()
		<-ctx.Done()
		return ctx.Err()
	}
	rec := &recorder{}
	w := newWorker(prov, rec, 0)

	if err := w.Run(stop, context.Background()); err != nil {
		t.Fatal(err)
	}
	if n := len(rec.all()); n != 0 {
		t.Errorf("cancelled call should not be reported, got %d results", n)
	}
	if prov.Discarded() != 0 {
		t.Error("connection should be released normally")
	}
}

func TestWorker_StopLetsBoundedCallFinish(t *testing.T) {
	stop, cancel := context.WithCancel(context.Background())
	defer cancel()

	prov := &core.FakeProvisioner{}
	prov.QueryFunc = func(ctx context.Context, _ string) error {
		cancel()
		select {
		case <-time.After(5 * time.Millisecond):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	rec := &recorder{}
	w := newWorker(prov, rec, time.Second)

	if err := w.Run(stop, context.Background()); err != nil {
		t.Fatal(err)
	}
	results := rec.all()
	if len(results) != 1 || results[0].Outcome != core.OutcomeSuccess {
		t.Errorf("in-flight call should complete and be reported, got %+v", results)
	}
}

func TestWorker_KillDiscardsInFlight(t *testing.T) {
	kill, cancelKill := context.WithCancel(context.Background())
	defer cancelKill()

	prov := &core.FakeProvisioner{}
	prov.QueryFunc = func(ctx context.Context, _ string) error {
		cancelKill()
		<-ctx.Done()
		return ctx.Err()
	}
	rec := &recorder{}
	w := newWorker(prov, rec, 0)

	if err := w.Run(context.Background(), kill); err != nil {
		t.Fatal(err)
	}
	if n := len(rec.all()); n != 0 {
		t.Errorf("killed call should not be reported, got %d results", n)
	}
	if prov.Discarded() != 1 {
		t.Errorf("killed connection should be discarded, discarded=%d", prov.Discarded())
	}
}

func TestWorker_TemplateError(t *testing.T) {
	stop, cancel := context.WithCancel(context.Background())
	defer cancel()

	prov := &core.FakeProvisioner{}
	prov.QueryFunc = func(context.Context, string) error {
		cancel()
		return nil
	}
	q := renderFunc(func(_, iteration int) (string, error) {
		if iteration == 0 {
			return "", errors.New(`variable "x" not found`)
		}
		return "SELECT 1", nil
	})
	rec := &recorder{}
	w := New(Config{ID: 2, Query: q}, prov, rec)

	if err := w.Run(stop, context.Background()); err != nil {
		t.Fatal(err)
	}
	results := rec.all()
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Outcome != core.OutcomeError || results[0].ErrKind != core.KindTemplate {
		t.Errorf("expected template error, got %+v", results[0])
	}
	if prov.Queries() != 1 {
		t.Errorf("failed render must not reach the database, queries=%d", prov.Queries())
	}
}

func TestWorker_RateLimited(t *testing.T) {
	stop, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	prov := &core.FakeProvisioner{QueryFunc: func(context.Context, string) error { return nil }}
	w := New(Config{ID: 1, Query: staticQuery("SELECT 1"), Limiter: ratelimit.NewRateLimiter(20)}, prov, nil)

	if err := w.Run(stop, context.Background()); err != nil {
		t.Fatal(err)
	}
	// burst of 20 plus about 3 more in 150ms
	if n := prov.Queries(); n < 20 || n > 26 {
		t.Errorf("expected about 23 queries, got %d", n)
	}
}

func TestWorker_StateAfterStop(t *testing.T) {
	stop, cancel := context.WithCancel(context.Background())

	inCall := make(chan struct{})
	release := make(chan struct{})
	prov := &core.FakeProvisioner{}
	prov.QueryFunc = func(ctx context.Context, _ string) error {
		if prov.Queries() == 1 {
			close(inCall)
			<-release
		}
		return nil
	}
	w := newWorker(prov, nil, time.Second)

	done := make(chan error, 1)
	go func() { done <- w.Run(stop, context.Background()) }()

	<-inCall
	if w.State() != StateRunning {
		t.Errorf("State() = %v, want running", w.State())
	}
	cancel()
	deadline := time.Now().Add(time.Second)
	for w.State() != StateDraining && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if w.State() != StateDraining {
		t.Errorf("State() = %v, want draining", w.State())
	}
	close(release)

	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if w.State() != StateClosed {
		t.Errorf("State() = %v, want closed", w.State())
	}
}

func TestState_String(t *testing.T) {
	for s, want := range map[State]string{
		StateConnecting: "connecting",
		StateRunning:    "running",
		StateDraining:   "draining",
		StateClosed:     "closed",
		State(9):        "unknown",
	} {
		if s.String() != want {
			t.Errorf("%d.String() = %q, want %q", s, s.String(), want)
		}
	}
}
