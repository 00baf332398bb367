package core

import (
	"context"
	"sync"
	"sync/atomic"
)

// MockWriter is a thread-safe io.Writer for testing.
type MockWriter struct {
	mu   sync.Mutex
	data []byte
}

func (w *MockWriter) Write(p []byte) (n int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.data = append(w.data, p...)
	return len(p), nil
}

func (w *MockWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return string(w.data)
}

// FakeProvisioner hands out in-memory connections for tests.
// AcquireFunc receives the 1-based acquisition number; QueryFunc runs for
// every query. Both are optional.
type FakeProvisioner struct {
	AcquireFunc func(ctx context.Context, n int) error
	QueryFunc   func(ctx context.Context, query string) error

	acquired  atomic.Int64
	released  atomic.Int64
	discarded atomic.Int64
	queries   atomic.Int64
}

func (p *FakeProvisioner) Acquire(ctx context.Context) (Connection, error) {
	n := p.acquired.Add(1)
	if p.AcquireFunc != nil {
		if err := p.AcquireFunc(ctx, int(n)); err != nil {
			return nil, &ConnectError{Err: err}
		}
	}
	return &fakeConnection{p: p}, nil
}

func (p *FakeProvisioner) Acquired() int  { return int(p.acquired.Load()) }
func (p *FakeProvisioner) Released() int  { return int(p.released.Load()) }
func (p *FakeProvisioner) Discarded() int { return int(p.discarded.Load()) }
func (p *FakeProvisioner) Queries() int   { return int(p.queries.Load()) }

type fakeConnection struct {
	p      *FakeProvisioner
	closed atomic.Bool
}

func (c *fakeConnection) Query(ctx context.Context, query string) error {
	c.p.queries.Add(1)
	if c.p.QueryFunc != nil {
		return c.p.QueryFunc(ctx, query)
	}
	return ctx.Err()
}

func (c *fakeConnection) Close(discard bool) error {
	if c.closed.Swap(true) {
		return nil
	}
	c.p.released.Add(1)
	if discard {
		c.p.discarded.Add(1)
	}
	return nil
}
