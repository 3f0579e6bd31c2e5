package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/Wyydra/yasignal/internal/core/domain"
	"github.com/Wyydra/yasignal/internal/core/port"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Event is the body POSTed to the telemetry endpoint.
type Event struct {
	ID        string         `json:"id,omitempty"`
	Type      string         `json:"type"`
	Data      map[string]any `json:"data"`
	Timestamp string         `json:"timestamp"`
}

const (
	DropQueueFull      = "queue_full"
	DropClosed         = "closed"
	DropDeliveryFailed = "delivery_failed"
)

// HTTPSink delivers events from a bounded queue with one worker. Each event
// gets a single POST attempt; failures are logged and dropped.
type HTTPSink struct {
	endpoint string
	client   *http.Client
	queue    chan Event
	done     chan struct{}
	stopped  chan struct{}
	// mu orders enqueues before close, so the final drain sees every
	// accepted event.
	mu      sync.RWMutex
	closed  bool
	metrics port.Metrics
	now     func() time.Time
}

func NewHTTPSink(endpoint string, timeout time.Duration, queueSize int, metrics port.Metrics) *HTTPSink {
	if queueSize <= 0 {
		queueSize = 1
	}
	s := &HTTPSink{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		queue:    make(chan Event, queueSize),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
		metrics:  metrics,
		now:      time.Now,
	}
	go s.run()
	return s
}

func (s *HTTPSink) Report(eventType string, data map[string]any) {
	ev := Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Data:      data,
		Timestamp: s.now().UTC().Format(time.RFC3339),
	}

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		s.drop(DropClosed, ev, nil)
		return
	}
	select {
	case s.queue <- ev:
		s.mu.RUnlock()
	default:
		s.mu.RUnlock()
		s.drop(DropQueueFull, ev, nil)
	}
}

// Close stops the worker after it drains queued events or ctx expires.
func (s *HTTPSink) Close(ctx context.Context) error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.done)
	}
	s.mu.Unlock()
	select {
	case <-s.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *HTTPSink) run() {
	defer close(s.stopped)
	for {
		select {
		case ev := <-s.queue:
			s.deliver(ev)
		case <-s.done:
			for {
				select {
				case ev := <-s.queue:
					s.deliver(ev)
				default:
					return
				}
			}
		}
	}
}

func (s *HTTPSink) deliver(ev Event) {
	if err := s.post(ev); err != nil {
		s.drop(DropDeliveryFailed, ev, err)
	}
}

func (s *HTTPSink) post(ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("%w: encode: %v", domain.ErrTelemetryDelivery, err)
	}

	req, err := http.NewRequest(http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrTelemetryDelivery, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrTelemetryDelivery, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("%w: status %d", domain.ErrTelemetryDelivery, resp.StatusCode)
	}
	return nil
}

func (s *HTTPSink) drop(reason string, ev Event, err error) {
	if s.metrics != nil {
		s.metrics.TelemetryDropped(reason)
	}
	log.Debug().Err(err).Str("event", ev.Type).Str("reason", reason).Msg("Telemetry event dropped")
}
