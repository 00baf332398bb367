package collector

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Thresholds defines pass/fail criteria for a run.
type Thresholds struct {
	Latency       *LatencyThresholds `yaml:"latency"`
	ErrorRate     string             `yaml:"error_rate"`
	MinThroughput float64            `yaml:"min_throughput"`
}

// LatencyThresholds defines upper latency limits. Zero means unchecked.
type LatencyThresholds struct {
	Mean time.Duration `yaml:"mean"`
	P50  time.Duration `yaml:"p50"`
	P90  time.Duration `yaml:"p90"`
	P95  time.Duration `yaml:"p95"`
	P99  time.Duration `yaml:"p99"`
}

// ThresholdResult represents the outcome of a single threshold check.
type ThresholdResult struct {
	Name      string `json:"name"`
	Passed    bool   `json:"passed"`
	Threshold string `json:"threshold"`
	Actual    string `json:"actual"`
}

// ThresholdResults contains all threshold check results.
type ThresholdResults struct {
	Passed  bool              `json:"passed"`
	Results []ThresholdResult `json:"results"`
}

// Validate reports malformed thresholds before a run starts.
func (t *Thresholds) Validate() error {
	if t == nil || t.ErrorRate == "" {
		return nil
	}
	if _, err := parsePercentage(t.ErrorRate); err != nil {
		return fmt.Errorf("thresholds.error_rate: %w", err)
	}
	return nil
}

// Check evaluates all thresholds against a summary.
func (t *Thresholds) Check(s *Summary) *ThresholdResults {
	if t == nil {
		return &ThresholdResults{Passed: true}
	}

	results := &ThresholdResults{
		Passed:  true,
		Results: make([]ThresholdResult, 0),
	}

	if t.Latency != nil {
		results.checkLatency(t.Latency, &s.Latency)
	}
	if t.ErrorRate != "" {
		results.checkErrorRate(t.ErrorRate, s)
	}
	if t.MinThroughput > 0 {
		passed := s.Throughput >= t.MinThroughput
		results.add(ThresholdResult{
			Name:      "throughput",
			Passed:    passed,
			Threshold: fmt.Sprintf("%.1f/s", t.MinThroughput),
			Actual:    fmt.Sprintf("%.1f/s", s.Throughput),
		})
	}

	return results
}

func (r *ThresholdResults) add(result ThresholdResult) {
	if !result.Passed {
		r.Passed = false
	}
	r.Results = append(r.Results, result)
}

func (r *ThresholdResults) checkLatency(limits *LatencyThresholds, actual *LatencyStats) {
	checks := []struct {
		name      string
		threshold time.Duration
		actual    time.Duration
	}{
		{"latency.mean", limits.Mean, actual.Mean},
		{"latency.p50", limits.P50, actual.P50},
		{"latency.p90", limits.P90, actual.P90},
		{"latency.p95", limits.P95, actual.P95},
		{"latency.p99", limits.P99, actual.P99},
	}

	for _, check := range checks {
		if check.threshold == 0 {
			continue
		}
		r.add(ThresholdResult{
			Name:      check.name,
			Passed:    check.actual < check.threshold,
			Threshold: FormatDuration(check.threshold),
			Actual:    FormatDuration(check.actual),
		})
	}
}

func (r *ThresholdResults) checkErrorRate(limit string, s *Summary) {
	thresholdRate, err := parsePercentage(limit)
	if err != nil {
		return
	}
	r.add(ThresholdResult{
		Name:      "error_rate",
		Passed:    s.ErrorRate < thresholdRate,
		Threshold: limit,
		Actual:    fmt.Sprintf("%.2f%%", s.ErrorRate),
	})
}

func parsePercentage(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if !strings.HasSuffix(s, "%") {
		return 0, fmt.Errorf("invalid percentage format: %s", s)
	}
	return strconv.ParseFloat(strings.TrimSuffix(s, "%"), 64)
}

// Violations returns only the failed threshold results.
func (r *ThresholdResults) Violations() []ThresholdResult {
	violations := make([]ThresholdResult, 0)
	for _, result := range r.Results {
		if !result.Passed {
			violations = append(violations, result)
		}
	}
	return violations
}
