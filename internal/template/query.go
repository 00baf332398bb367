package template

import (
	"strings"

	"pgbench/internal/core"
	"pgbench/internal/data"
)

// Query is the statement every worker runs. Text without placeholders is
// returned as-is; otherwise it is rendered per attempt with ${worker},
// ${iteration}, ${run} and ${data.<column>} available.
type Query struct {
	text   string
	static bool
	runID  string
	data   *data.Source
}

// NewQuery prepares text for rendering. src may be nil.
func NewQuery(text, runID string, src *data.Source) *Query {
	return &Query{
		text:   text,
		static: !strings.Contains(text, "${"),
		runID:  runID,
		data:   src,
	}
}

// Text returns the unrendered statement.
func (q *Query) Text() string { return q.text }

// Render produces the statement for one attempt.
func (q *Query) Render(workerID, iteration int) (string, error) {
	if q.static {
		return q.text, nil
	}
	vars := q.vars(workerID, iteration)
	if q.data != nil {
		q.data.Inject(vars)
	}
	return Substitute(q.text, vars)
}

// Check renders once against the first data row without consuming it, so
// broken placeholders are reported before any worker starts.
func (q *Query) Check() error {
	if q.static {
		return nil
	}
	vars := q.vars(0, 0)
	if q.data != nil {
		for field, value := range q.data.Peek() {
			vars.Set("data."+field, value)
		}
	}
	_, err := Substitute(q.text, vars)
	return err
}

func (q *Query) vars(workerID, iteration int) *core.MapVariables {
	vars := core.NewVariables()
	vars.Set("worker", workerID)
	vars.Set("iteration", iteration)
	vars.Set("run", q.runID)
	return vars
}
