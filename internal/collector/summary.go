package collector

import "time"

// WorkerStats describes how many workers actually took part in the run.
type WorkerStats struct {
	Requested int `json:"requested"`
	Connected int `json:"connected"`
	Failed    int `json:"failed"`    // never connected
	Lost      int `json:"lost"`      // connected, then failed to reconnect and stopped
	Abandoned int `json:"abandoned"` // still running when the grace period expired
}

// Summary is the immutable result of one run. Only attempts submitted
// during the measuring phase are counted.
type Summary struct {
	RunID           string         `json:"runId"`
	Workers         WorkerStats    `json:"workers"`
	Total           int            `json:"total"`
	Success         int            `json:"success"`
	Errors          int            `json:"errors"`
	TimedOut        int            `json:"timedOut"`
	ErrorRate       float64        `json:"errorRate"`
	Throughput      float64        `json:"throughput"`
	Elapsed         time.Duration  `json:"elapsed"`
	Latency         LatencyStats   `json:"latency"`
	ErrorKinds      map[string]int `json:"errorKinds"`
	ConnectErrors   []string       `json:"connectErrors,omitempty"`
	WarmupDiscarded int            `json:"warmupDiscarded"`
	LateDiscarded   int            `json:"lateDiscarded"`
}

// RunInfo carries what the coordinator knows about the run that the
// collector cannot observe itself.
type RunInfo struct {
	RunID         string
	Workers       WorkerStats
	ConnectErrors []error
}

// Degraded reports whether fewer workers ran than were requested, or
// some of them stopped early because a connection could not be replaced.
func (s *Summary) Degraded() bool {
	return s.Workers.Failed > 0 || s.Workers.Lost > 0 || s.Workers.Connected < s.Workers.Requested
}
