package collector_test

import (
	"fmt"
	"time"

	"pgbench/internal/collector"
	"pgbench/internal/core"
)

func ExampleCollector() {
	c := collector.NewCollector()

	// warmup results are not counted
	c.Report(core.Result{Phase: core.PhaseWarmup, Latency: 3 * time.Millisecond})

	c.StartMeasuring()
	for i := 1; i <= 10; i++ {
		c.Report(core.Result{Phase: core.PhaseMeasuring, Latency: time.Duration(i) * time.Millisecond})
	}
	c.StopMeasuring()
	c.Close()

	s := c.Finalize(collector.RunInfo{})
	fmt.Printf("total=%d warmup=%d p50=%v p95=%v p99=%v\n",
		s.Total, s.WarmupDiscarded, s.Latency.P50, s.Latency.P95, s.Latency.P99)
	// Output: total=10 warmup=1 p50=5ms p95=10ms p99=10ms
}

func ExamplePercentile() {
	sorted := []time.Duration{10, 20, 30, 40}
	fmt.Println(collector.Percentile(sorted, 50), collector.Percentile(sorted, 75))
	// Output: 20ns 30ns
}
