package telemetry

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Wyydra/yasignal/internal/core/domain"
)

type dropCounter struct {
	mu      sync.Mutex
	reasons map[string]int
}

func (d *dropCounter) ClientConnected()                {}
func (d *dropCounter) ClientDisconnected()             {}
func (d *dropCounter) MessageRouted(domain.SignalType) {}
func (d *dropCounter) MessageDropped(string)           {}
func (d *dropCounter) SessionPhase(domain.Phase)       {}
func (d *dropCounter) ReadingIngested(bool)            {}
func (d *dropCounter) TelemetryDropped(reason string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.reasons == nil {
		d.reasons = map[string]int{}
	}
	d.reasons[reason]++
}

func (d *dropCounter) total() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, v := range d.reasons {
		n += v
	}
	return n
}

func TestHTTPSink_DeliversEvent(t *testing.T) {
	got := make(chan Event, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method=%s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content-type=%q", ct)
		}
		var ev Event
		if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
			t.Errorf("decode: %v", err)
		}
		got <- ev
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	s := NewHTTPSink(srv.URL, time.Second, 8, nil)
	defer s.Close(context.Background())

	s.Report("signaling_error", map[string]any{"code": "UnknownTarget"})

	select {
	case ev := <-got:
		if ev.Type != "signaling_error" {
			t.Fatalf("type=%q", ev.Type)
		}
		if ev.Data["code"] != "UnknownTarget" {
			t.Fatalf("data=%v", ev.Data)
		}
		if _, err := time.Parse(time.RFC3339, ev.Timestamp); err != nil {
			t.Fatalf("timestamp %q: %v", ev.Timestamp, err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for telemetry POST")
	}
}

func TestHTTPSink_NetworkFailureIsSwallowed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close() // nothing listens there any more

	s := NewHTTPSink(url, 200*time.Millisecond, 4, nil)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 16; i++ {
			s.Report("error", map[string]any{"i": i})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Report blocked during network failure")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestHTTPSink_ReportAfterClose(t *testing.T) {
	s := NewHTTPSink("http://127.0.0.1:1", 100*time.Millisecond, 1, nil)
	if err := s.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	s.Report("late", nil)
}

func TestHTTPSink_ServerErrorIsSwallowed(t *testing.T) {
	hits := make(chan struct{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits <- struct{}{}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := NewHTTPSink(srv.URL, time.Second, 1, nil)
	s.Report("error", nil)

	select {
	case <-hits:
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for POST")
	}
	if err := s.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	select {
	case <-hits:
		t.Fatalf("event retried after failure")
	default:
	}
}

// Every reported event is either delivered or counted as dropped, even when
// Close races with Report.
func TestHTTPSink_CloseRaceAccountsForEveryEvent(t *testing.T) {
	var delivered atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		delivered.Add(1)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	for round := 0; round < 20; round++ {
		delivered.Store(0)
		drops := &dropCounter{}
		s := NewHTTPSink(srv.URL, time.Second, 4, drops)

		const reports = 50
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < reports; i++ {
				s.Report("event", nil)
			}
		}()
		if err := s.Close(context.Background()); err != nil {
			t.Fatalf("close: %v", err)
		}
		wg.Wait()

		if got := int(delivered.Load()) + drops.total(); got != reports {
			t.Fatalf("round %d: delivered %d + dropped %d = %d, want %d",
				round, delivered.Load(), drops.total(), got, reports)
		}
	}
}
