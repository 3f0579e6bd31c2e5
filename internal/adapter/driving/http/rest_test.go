package http

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/Wyydra/yasignal/internal/adapter/driven/anomaly"
	"github.com/Wyydra/yasignal/internal/config"
	"github.com/Wyydra/yasignal/internal/core/domain"
)

func domainID(s string) domain.ClientID { return domain.ClientID(s) }

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestIngest(t *testing.T) {
	s := newTestServer(t, nil)

	resp := postJSON(t, s.URL+"/ingest", `{"device_id":"dev-1","value":80.5,"time":1700000000}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	var v domain.Verdict
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !v.Anomaly || v.Detector != anomaly.ModeFallback {
		t.Fatalf("verdict = %+v", v)
	}

	for _, body := range []string{`not json`, `{"device_id":"d","time":1}`, `{"value":1,"time":1}`} {
		if resp := postJSON(t, s.URL+"/ingest", body); resp.StatusCode != http.StatusBadRequest {
			t.Errorf("body %s: status = %d, want 400", body, resp.StatusCode)
		}
	}
}

func TestIngest_RateLimited(t *testing.T) {
	s := newTestServer(t, func(cfg *config.Config, _ *Deps) {
		cfg.IngestRate = 0.001
		cfg.IngestBurst = 1
	})
	body := `{"device_id":"d","value":1,"time":1}`
	if resp := postJSON(t, s.URL+"/ingest", body); resp.StatusCode != http.StatusAccepted {
		t.Fatalf("first status = %d", resp.StatusCode)
	}
	if resp := postJSON(t, s.URL+"/ingest", body); resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("second status = %d, want 429", resp.StatusCode)
	}
}

type captureSink struct{ types []string }

func (c *captureSink) Report(eventType string, _ map[string]any) {
	c.types = append(c.types, eventType)
}

func TestTelemetryReceiver(t *testing.T) {
	sink := &captureSink{}
	s := newTestServer(t, func(_ *config.Config, deps *Deps) {
		deps.Telemetry = sink
	})

	if resp := postJSON(t, s.URL+"/telemetry", `{"type":"ice_failed","data":{"peer":"bob"}}`); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if resp := postJSON(t, s.URL+"/telemetry", `{"data":{}}`); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing type: status = %d", resp.StatusCode)
	}
	if len(sink.types) != 1 || sink.types[0] != "ice_failed" {
		t.Fatalf("reported = %v", sink.types)
	}
}

func TestHealthAndICEServers(t *testing.T) {
	s := newTestServer(t, nil)

	resp, err := http.Get(s.URL + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	var health map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&health)
	if health["status"] != "ok" || health["anomaly_detector"] != anomaly.ModeFallback {
		t.Fatalf("health = %v", health)
	}

	resp2, err := http.Get(s.URL + "/ice-servers")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp2.Body.Close()
	var ice struct {
		ICEServers []struct {
			URLs []string `json:"urls"`
		} `json:"iceServers"`
	}
	if err := json.NewDecoder(resp2.Body).Decode(&ice); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(ice.ICEServers) != 1 || ice.ICEServers[0].URLs[0] != config.DefaultICEServer {
		t.Fatalf("ice servers = %+v", ice)
	}
}

func TestBenchmark(t *testing.T) {
	s := newTestServer(t, nil)

	resp, err := http.Get(s.URL + "/anomaly/benchmark?iterations=10&value=80")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&body)
	if body["iterations"] != float64(10) {
		t.Fatalf("body = %v", body)
	}

	bad, err := http.Get(s.URL + "/anomaly/benchmark?iterations=-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	bad.Body.Close()
	if bad.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", bad.StatusCode)
	}
}
