package collector

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"
)

// FormatText writes the summary in human-readable form.
func FormatText(w io.Writer, s *Summary, thresholds *ThresholdResults) {
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "pgbench - Benchmark Results")
	fmt.Fprintln(w, "===========================")
	fmt.Fprintln(w, "")
	if s.RunID != "" {
		fmt.Fprintf(w, "Run:            %s\n", s.RunID)
	}
	fmt.Fprintf(w, "Workers:        %d/%d connected", s.Workers.Connected, s.Workers.Requested)
	if s.Workers.Failed > 0 {
		fmt.Fprintf(w, " (%d failed to connect)", s.Workers.Failed)
	}
	if s.Workers.Lost > 0 {
		fmt.Fprintf(w, " (%d lost on reconnect)", s.Workers.Lost)
	}
	if s.Workers.Abandoned > 0 {
		fmt.Fprintf(w, " (%d abandoned at shutdown)", s.Workers.Abandoned)
	}
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "Measured:       %v\n", s.Elapsed.Round(time.Millisecond))

	if s.Total == 0 {
		fmt.Fprintln(w, "No measured queries")
	} else {
		fmt.Fprintf(w, "Total Queries:  %s\n", formatNumber(s.Total))
		fmt.Fprintf(w, "Success:        %s\n", formatNumber(s.Success))
		fmt.Fprintf(w, "Errors:         %s\n", formatNumber(s.Errors))
		fmt.Fprintf(w, "Timeouts:       %s\n", formatNumber(s.TimedOut))
		fmt.Fprintf(w, "Error Rate:     %.2f%%\n", s.ErrorRate)
		fmt.Fprintf(w, "Throughput:     %.1f queries/sec\n", s.Throughput)
		fmt.Fprintln(w, "")
		fmt.Fprintln(w, "Latency:")
		fmt.Fprintf(w, "  Min:    %s\n", FormatDuration(s.Latency.Min))
		fmt.Fprintf(w, "  Mean:   %s\n", FormatDuration(s.Latency.Mean))
		fmt.Fprintf(w, "  P50:    %s\n", FormatDuration(s.Latency.P50))
		fmt.Fprintf(w, "  P90:    %s\n", FormatDuration(s.Latency.P90))
		fmt.Fprintf(w, "  P95:    %s\n", FormatDuration(s.Latency.P95))
		fmt.Fprintf(w, "  P99:    %s\n", FormatDuration(s.Latency.P99))
		fmt.Fprintf(w, "  Max:    %s\n", FormatDuration(s.Latency.Max))
	}

	if len(s.ErrorKinds) > 0 {
		fmt.Fprintln(w, "")
		fmt.Fprintln(w, "Errors by kind:")
		for _, kind := range sortedKeys(s.ErrorKinds) {
			fmt.Fprintf(w, "  %-12s %s\n", kind, formatNumber(s.ErrorKinds[kind]))
		}
	}

	if len(s.ConnectErrors) > 0 {
		fmt.Fprintln(w, "")
		fmt.Fprintln(w, "Connection failures:")
		for _, msg := range s.ConnectErrors {
			fmt.Fprintf(w, "  %s\n", msg)
		}
	}

	if thresholds != nil && len(thresholds.Results) > 0 {
		fmt.Fprintln(w, "")
		fmt.Fprintln(w, "Thresholds:")
		for _, result := range thresholds.Results {
			symbol := "✓"
			if !result.Passed {
				symbol = "✗"
			}
			fmt.Fprintf(w, "  %s %s < %s (actual: %s)\n",
				symbol, result.Name, result.Threshold, result.Actual)
		}
	}
}

// FormatJSON writes the summary as an indented JSON object.
func FormatJSON(w io.Writer, s *Summary, thresholds *ThresholdResults) error {
	output := struct {
		RunID           string            `json:"runId,omitempty"`
		Workers         WorkerStats       `json:"workers"`
		Elapsed         string            `json:"elapsed"`
		Total           int               `json:"total"`
		Success         int               `json:"success"`
		Errors          int               `json:"errors"`
		TimedOut        int               `json:"timedOut"`
		ErrorRate       float64           `json:"errorRate"`
		Throughput      float64           `json:"throughput"`
		Latency         jsonLatency       `json:"latency"`
		ErrorKinds      map[string]int    `json:"errorKinds"`
		ConnectErrors   []string          `json:"connectErrors,omitempty"`
		WarmupDiscarded int               `json:"warmupDiscarded"`
		LateDiscarded   int               `json:"lateDiscarded"`
		Thresholds      *ThresholdResults `json:"thresholds,omitempty"`
	}{
		RunID:           s.RunID,
		Workers:         s.Workers,
		Elapsed:         s.Elapsed.Round(time.Millisecond).String(),
		Total:           s.Total,
		Success:         s.Success,
		Errors:          s.Errors,
		TimedOut:        s.TimedOut,
		ErrorRate:       s.ErrorRate,
		Throughput:      s.Throughput,
		Latency:         toJSONLatency(s.Latency),
		ErrorKinds:      s.ErrorKinds,
		ConnectErrors:   s.ConnectErrors,
		WarmupDiscarded: s.WarmupDiscarded,
		LateDiscarded:   s.LateDiscarded,
		Thresholds:      thresholds,
	}
	if output.ErrorKinds == nil {
		output.ErrorKinds = map[string]int{}
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(output)
}

// jsonLatency reports latencies in fractional milliseconds.
type jsonLatency struct {
	MinMs  float64 `json:"minMs"`
	MaxMs  float64 `json:"maxMs"`
	MeanMs float64 `json:"meanMs"`
	P50Ms  float64 `json:"p50Ms"`
	P90Ms  float64 `json:"p90Ms"`
	P95Ms  float64 `json:"p95Ms"`
	P99Ms  float64 `json:"p99Ms"`
}

func toJSONLatency(l LatencyStats) jsonLatency {
	return jsonLatency{
		MinMs:  millis(l.Min),
		MaxMs:  millis(l.Max),
		MeanMs: millis(l.Mean),
		P50Ms:  millis(l.P50),
		P90Ms:  millis(l.P90),
		P95Ms:  millis(l.P95),
		P99Ms:  millis(l.P99),
	}
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// FormatDuration formats a duration for display.
func FormatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%dµs", d.Microseconds())
	}
	if d < time.Second {
		return fmt.Sprintf("%.2fms", millis(d))
	}
	if d < time.Minute {
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
	return d.Round(time.Second).String()
}

func formatNumber(n int) string {
	s := fmt.Sprintf("%d", n)
	if n < 1000 {
		return s
	}
	out := make([]byte, 0, len(s)+len(s)/3)
	for i, ch := range []byte(s) {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, ch)
	}
	return string(out)
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
