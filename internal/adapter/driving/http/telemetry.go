package http

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/Wyydra/yasignal/internal/core/domain"
)

type clientEvent struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// ServeTelemetry accepts events from browser clients and hands them to the
// telemetry sink, tagged with their origin.
func (h *Handler) ServeTelemetry(w http.ResponseWriter, r *http.Request) {
	var ev clientEvent
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxIngestBytes)).Decode(&ev); err != nil {
		writeError(w, http.StatusBadRequest, domain.CodeMalformedEnvelope, "invalid JSON body")
		return
	}
	ev.Type = strings.TrimSpace(ev.Type)
	if ev.Type == "" {
		writeError(w, http.StatusBadRequest, domain.CodeMalformedEnvelope, "type is required")
		return
	}
	if ev.Data == nil {
		ev.Data = map[string]any{}
	}
	ev.Data["source"] = "client"
	ev.Data["remote_addr"] = r.RemoteAddr

	if h.Telemetry != nil {
		h.Telemetry.Report(ev.Type, ev.Data)
	}
	w.WriteHeader(http.StatusNoContent)
}
