// Package data loads parameter rows (CSV or JSON) that query templates
// reference as ${data.<column>}.
package data

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
)

// Mode defines how rows are picked for each query attempt.
type Mode string

const (
	// ModeSequential walks the rows in order, wrapping around.
	ModeSequential Mode = "sequential"
	// ModeRandom picks a random row for each attempt.
	ModeRandom Mode = "random"
)

// ParseMode accepts "", "sequential" and "random" (case-insensitive).
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeSequential:
		return ModeSequential, nil
	case ModeRandom:
		return ModeRandom, nil
	}
	return "", fmt.Errorf("unknown data mode %q (use sequential or random)", s)
}

// Source is a loaded parameter file shared by all workers.
type Source struct {
	rows    []map[string]any
	mode    Mode
	counter atomic.Uint64
	mu      sync.Mutex
	rng     *rand.Rand
}

// NewSource creates a Source from already-loaded rows.
func NewSource(rows []map[string]any, mode Mode) *Source {
	if mode == "" {
		mode = ModeSequential
	}
	return &Source{
		rows: rows,
		mode: mode,
		rng:  rand.New(rand.NewSource(rand.Int63())),
	}
}

// Len returns the number of rows.
func (s *Source) Len() int {
	return len(s.rows)
}

// Next returns a copy of the next row. Safe for concurrent use.
func (s *Source) Next() map[string]any {
	if len(s.rows) == 0 {
		return nil
	}

	var idx int
	switch s.mode {
	case ModeRandom:
		s.mu.Lock()
		idx = s.rng.Intn(len(s.rows))
		s.mu.Unlock()
	default:
		n := s.counter.Add(1) - 1
		idx = int(n % uint64(len(s.rows)))
	}

	row := make(map[string]any, len(s.rows[idx]))
	for k, v := range s.rows[idx] {
		row[k] = v
	}
	return row
}

// Peek returns a copy of the first row without advancing.
func (s *Source) Peek() map[string]any {
	if len(s.rows) == 0 {
		return nil
	}
	row := make(map[string]any, len(s.rows[0]))
	for k, v := range s.rows[0] {
		row[k] = v
	}
	return row
}

// Inject sets data.<column> for the next row.
func (s *Source) Inject(vars interface{ Set(key string, value any) }) {
	for field, value := range s.Next() {
		vars.Set("data."+field, value)
	}
}

// LoadFile loads a .csv or .json parameter file. Relative paths are
// resolved against baseDir when it is set.
func LoadFile(path string, mode Mode, baseDir string) (*Source, error) {
	if !filepath.IsAbs(path) && baseDir != "" {
		path = filepath.Join(baseDir, path)
	}

	var rows []map[string]any
	var err error
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv":
		rows, err = loadCSV(path)
	case ".json":
		rows, err = loadJSON(path)
	default:
		return nil, fmt.Errorf("unsupported data file format %q (use .csv or .json)", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("data file %s is empty", path)
	}

	return NewSource(rows, mode), nil
}

// loadCSV reads a header row followed by data rows.
func loadCSV(path string) ([]map[string]any, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("CSV must have header row and at least one data row")
	}

	headers := records[0]
	rows := make([]map[string]any, 0, len(records)-1)
	for _, record := range records[1:] {
		row := make(map[string]any, len(headers))
		for i, header := range headers {
			if i < len(record) {
				row[header] = record[i]
			} else {
				row[header] = ""
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// loadJSON reads an array of objects.
func loadJSON(path string) ([]map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rows []map[string]any
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("JSON must be an array of objects: %w", err)
	}
	return rows, nil
}
