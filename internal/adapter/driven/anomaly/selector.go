package anomaly

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/Wyydra/yasignal/internal/core/domain"
	"github.com/Wyydra/yasignal/internal/core/port"
	"github.com/rs/zerolog/log"
)

// FallbackThreshold is the fixed threshold used when no detection module is
// available.
const FallbackThreshold = 75.0

const (
	ModePrimary  = "wasm"
	ModeFallback = "fallback"
)

// Fallback flags values strictly above FallbackThreshold.
func Fallback(value float64) bool {
	return value > FallbackThreshold
}

// Detector is a loaded high-performance detection capability.
type Detector interface {
	Detect(ctx context.Context, value float64) (bool, error)
	Close(ctx context.Context) error
}

// Loader produces the primary detector. It is called at most once.
type Loader func(ctx context.Context) (Detector, error)

// Selector evaluates readings with the primary detector until it fails once,
// then with Fallback for the rest of the process. The switch is one way.
type Selector struct {
	primary   Detector
	fallback  atomic.Bool
	telemetry port.TelemetrySink
	timeout   time.Duration
}

// NewSelector attempts load exactly once. A nil loader selects the fallback.
func NewSelector(ctx context.Context, load Loader, telemetry port.TelemetrySink) *Selector {
	s := &Selector{telemetry: telemetry, timeout: time.Second}
	if load == nil {
		s.fallback.Store(true)
		log.Info().Msg("No anomaly detection module configured, using fallback")
		return s
	}

	d, err := load(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrCapabilityUnavailable) {
			err = errors.Join(domain.ErrCapabilityUnavailable, err)
		}
		s.fallback.Store(true)
		log.Warn().Err(err).Msg("Failed to load anomaly detection module, activating fallback")
		s.report("wasm_load_error", err)
		return s
	}
	s.primary = d
	log.Info().Msg("Using WASM anomaly detection")
	return s
}

func (s *Selector) Evaluate(value float64) bool {
	if s.fallback.Load() {
		return Fallback(value)
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	anomaly, err := s.primary.Detect(ctx, value)
	if err != nil {
		s.degrade(err)
		return Fallback(value)
	}
	return anomaly
}

func (s *Selector) Mode() string {
	if s.fallback.Load() {
		return ModeFallback
	}
	return ModePrimary
}

// Benchmark returns the mean latency of Evaluate over iterations calls.
func (s *Selector) Benchmark(iterations int, value float64) time.Duration {
	if iterations <= 0 {
		iterations = 1000
	}
	start := time.Now()
	for i := 0; i < iterations; i++ {
		_ = s.Evaluate(value)
	}
	return time.Since(start) / time.Duration(iterations)
}

// Close releases the primary detector if it is still in use.
func (s *Selector) Close(ctx context.Context) error {
	if s.primary == nil || !s.fallback.CompareAndSwap(false, true) {
		return nil
	}
	return s.primary.Close(ctx)
}

func (s *Selector) degrade(err error) {
	if !s.fallback.CompareAndSwap(false, true) {
		return
	}
	log.Error().Err(err).Msg("Error during WASM detection, switching to fallback")
	s.report("wasm_detection_error", err)
	if cerr := s.primary.Close(context.Background()); cerr != nil {
		log.Debug().Err(cerr).Msg("Failed to close detection module")
	}
}

func (s *Selector) report(event string, err error) {
	if s.telemetry == nil {
		return
	}
	s.telemetry.Report(event, map[string]any{"error": err.Error()})
}
