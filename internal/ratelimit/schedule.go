package ratelimit

import (
	"time"

	"pgbench/internal/core"
)

// Schedule derives the run phase from elapsed time: warmup first, then the
// measured duration, then stopped. A zero duration skips measuring entirely.
type Schedule struct {
	warmup    time.Duration
	duration  time.Duration
	startTime time.Time
	clock     core.Clock
}

// NewSchedule creates a Schedule with a real clock, starting now.
func NewSchedule(warmup, duration time.Duration) *Schedule {
	return NewScheduleWithClock(warmup, duration, core.RealClock{})
}

// NewScheduleWithClock creates a Schedule with a custom clock (for testing).
func NewScheduleWithClock(warmup, duration time.Duration, clock core.Clock) *Schedule {
	return &Schedule{
		warmup:    warmup,
		duration:  duration,
		startTime: clock.Now(),
		clock:     clock,
	}
}

func (s *Schedule) Elapsed() time.Duration {
	return s.clock.Since(s.startTime)
}

// Total is the planned length of the run, warmup included.
func (s *Schedule) Total() time.Duration {
	if s.duration == 0 {
		return s.warmup
	}
	return s.warmup + s.duration
}

func (s *Schedule) Phase() core.Phase {
	elapsed := s.Elapsed()
	if elapsed < s.warmup {
		return core.PhaseWarmup
	}
	if s.duration > 0 && elapsed < s.warmup+s.duration {
		return core.PhaseMeasuring
	}
	return core.PhaseStopped
}

// Remaining returns the time left until the run stops.
func (s *Schedule) Remaining() time.Duration {
	left := s.Total() - s.Elapsed()
	if left < 0 {
		return 0
	}
	return left
}
