package driver

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

const maxQueryLogSize = 1024

// DebugLogger prints every query attempt. A nil *DebugLogger is valid and
// logs nothing.
type DebugLogger struct {
	out io.Writer
	mu  sync.Mutex
}

func NewDebugLogger(out io.Writer) *DebugLogger {
	return &DebugLogger{out: out}
}

func (d *DebugLogger) LogQuery(workerID int, query string) {
	if d == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	fmt.Fprintf(d.out, "[Worker %d] >>> QUERY: %s\n", workerID, truncateQuery(query))
}

func (d *DebugLogger) LogResult(workerID, rows int, duration time.Duration) {
	if d == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	fmt.Fprintf(d.out, "[Worker %d] <<< OK: %d rows (%s)\n", workerID, rows, duration.Round(time.Microsecond))
}

func (d *DebugLogger) LogError(workerID int, kind string, err error, duration time.Duration) {
	if d == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	fmt.Fprintf(d.out, "[Worker %d] !!! ERROR (%s): %s (%s)\n",
		workerID, kind, err, duration.Round(time.Microsecond))
}

func truncateQuery(query string) string {
	query = strings.Join(strings.Fields(query), " ")
	if len(query) <= maxQueryLogSize {
		return query
	}
	return query[:maxQueryLogSize] + fmt.Sprintf("... (truncated, %d bytes total)", len(query))
}
