// Package progress prints a live status line on stderr during a run.
package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"pgbench/internal/collector"
	"pgbench/internal/core"
)

// Status is the run state shown next to the counters.
type Status interface {
	Phase() core.Phase
	Remaining() time.Duration
}

type Progress struct {
	startTime time.Time
	collector *collector.Collector
	status    Status
	interval  time.Duration
	ticker    *time.Ticker
	stopCh    chan struct{}
	stopped   atomic.Bool
	quiet     bool
	output    io.Writer
	mu        sync.Mutex
}

func NewProgress(c *collector.Collector, quiet bool) *Progress {
	return &Progress{
		collector: c,
		quiet:     quiet,
		interval:  time.Second,
		output:    os.Stderr,
	}
}

func (p *Progress) SetOutput(w io.Writer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.output = w
}

// SetStatus attaches the phase and remaining time to the status line.
func (p *Progress) SetStatus(s Status) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status = s
}

func (p *Progress) Start() {
	if p.quiet {
		return
	}
	p.startTime = time.Now()
	p.stopCh = make(chan struct{})
	p.ticker = time.NewTicker(p.interval)
	go p.run()
}

func (p *Progress) run() {
	for {
		select {
		case <-p.stopCh:
			return
		case <-p.ticker.C:
			p.printProgress()
		}
	}
}

func (p *Progress) printProgress() {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprint(p.output, p.line(time.Since(p.startTime)))
}

// line renders the status line. Callers hold p.mu.
func (p *Progress) line(elapsed time.Duration) string {
	s := p.collector.Snapshot()
	elapsed = elapsed.Round(time.Second)
	mins := int(elapsed.Minutes())
	secs := int(elapsed.Seconds()) % 60

	prefix := fmt.Sprintf("\033[K[%02d:%02d]", mins, secs)
	if p.status != nil {
		prefix += fmt.Sprintf(" %s (%s left)", p.status.Phase(), p.status.Remaining().Round(time.Second))
	}

	if s.Total == 0 {
		return fmt.Sprintf("%s Warmup queries: %d\r", prefix, s.Warmup)
	}
	failed := s.Errors + s.TimedOut
	errorRate := float64(failed) / float64(s.Total) * 100
	return fmt.Sprintf("%s Queries: %d | QPS: %.1f | Errors: %d (%.1f%%) | p50: %s | p99: %s\r",
		prefix, s.Total, s.Throughput, failed, errorRate,
		collector.FormatDuration(s.P50), collector.FormatDuration(s.P99))
}

func (p *Progress) Stop() {
	if p.quiet || p.stopped.Swap(true) {
		return
	}
	if p.ticker != nil {
		p.ticker.Stop()
	}
	if p.stopCh != nil {
		close(p.stopCh)
	}
	p.mu.Lock()
	fmt.Fprintf(p.output, "\033[K")
	p.mu.Unlock()
}

func (p *Progress) Print(message string) {
	if p.quiet {
		return
	}
	p.mu.Lock()
	fmt.Fprintf(p.output, "\033[K%s\n", message)
	p.mu.Unlock()
}

func (p *Progress) Printf(format string, args ...any) {
	if p.quiet {
		return
	}
	p.mu.Lock()
	fmt.Fprintf(p.output, "\033[K"+format+"\n", args...)
	p.mu.Unlock()
}

// Warnf prints a diagnostic line, also in quiet mode.
func (p *Progress) Warnf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.quiet {
		fmt.Fprint(p.output, "\033[K")
	}
	fmt.Fprintf(p.output, format+"\n", args...)
}
