package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/Wyydra/yasignal/internal/core/domain"
	"github.com/Wyydra/yasignal/internal/core/port"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
)

var ErrInvalidReading = errors.New("invalid reading")

type IngestService struct {
	detector  port.AnomalyDetector
	telemetry port.TelemetrySink
	metrics   port.Metrics
	validate  *validator.Validate
}

func NewIngestService(detector port.AnomalyDetector, telemetry port.TelemetrySink, metrics port.Metrics) *IngestService {
	if telemetry == nil {
		telemetry = nopSink{}
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &IngestService{
		detector:  detector,
		telemetry: telemetry,
		metrics:   metrics,
		validate:  validator.New(),
	}
}

// Ingest evaluates one reading. Anomalies are reported to telemetry.
func (s *IngestService) Ingest(ctx context.Context, r domain.Reading) (domain.Verdict, error) {
	if err := ctx.Err(); err != nil {
		return domain.Verdict{}, err
	}
	if err := s.validate.Struct(r); err != nil {
		return domain.Verdict{}, fmt.Errorf("%w: %v", ErrInvalidReading, err)
	}

	v := domain.Verdict{
		DeviceID: r.DeviceID,
		Value:    *r.Value,
		Anomaly:  s.detector.Evaluate(*r.Value),
		Detector: s.detector.Mode(),
	}
	s.metrics.ReadingIngested(v.Anomaly)

	if v.Anomaly {
		log.Info().
			Str("device_id", r.DeviceID).
			Float64("value", v.Value).
			Str("detector", v.Detector).
			Msg("Anomaly detected")
		s.telemetry.Report("anomaly_detected", map[string]any{
			"device_id": r.DeviceID,
			"value":     v.Value,
			"time":      *r.Time,
			"detector":  v.Detector,
		})
	}
	return v, nil
}
