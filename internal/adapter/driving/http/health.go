package http

import (
	"net/http"
	"strconv"
)

func (h *Handler) ServeHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status":   "ok",
		"clients":  h.Router.Registry().Len(),
		"sessions": h.Router.Tracker().Len(),
		"hub":      h.Hub.Len(),
	}
	if h.Detector != nil {
		body["anomaly_detector"] = h.Detector.Mode()
	}
	writeJSON(w, http.StatusOK, body)
}

// ServeBenchmark reports the mean anomaly evaluation latency.
func (h *Handler) ServeBenchmark(w http.ResponseWriter, r *http.Request) {
	if h.Benchmark == nil {
		writeError(w, http.StatusServiceUnavailable, "Unavailable", "no anomaly detector")
		return
	}
	iterations := 1000
	if v := r.URL.Query().Get("iterations"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 1_000_000 {
			writeError(w, http.StatusBadRequest, "BadRequest", "iterations must be in 1..1000000")
			return
		}
		iterations = n
	}
	value := 50.0
	if v := r.URL.Query().Get("value"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "BadRequest", "value must be a number")
			return
		}
		value = f
	}

	avg := h.Benchmark.Benchmark(iterations, value)
	body := map[string]any{
		"iterations": iterations,
		"value":      value,
		"average_ns": avg.Nanoseconds(),
	}
	if h.Detector != nil {
		body["detector"] = h.Detector.Mode()
	}
	writeJSON(w, http.StatusOK, body)
}

// ServeICEServers lists the STUN/TURN servers browsers should use.
func (h *Handler) ServeICEServers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"iceServers": h.ICEServers})
}
