package port

import "time"

type AnomalyDetector interface {
	Evaluate(value float64) bool
	// Mode names the implementation currently in use.
	Mode() string
}

type AnomalyBenchmarker interface {
	Benchmark(iterations int, value float64) time.Duration
}
