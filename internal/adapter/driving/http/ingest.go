package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Wyydra/yasignal/internal/core/domain"
	"github.com/Wyydra/yasignal/internal/core/service"
)

const maxIngestBytes = 1 << 16

// ServeIngest accepts one device reading and answers 202 with the verdict.
func (h *Handler) ServeIngest(w http.ResponseWriter, r *http.Request) {
	if !h.ingest.Allow() {
		writeError(w, http.StatusTooManyRequests, domain.CodeRateLimited, "rate limit exceeded")
		return
	}

	var reading domain.Reading
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxIngestBytes)).Decode(&reading); err != nil {
		writeError(w, http.StatusBadRequest, domain.CodeMalformedEnvelope, "invalid JSON body")
		return
	}

	verdict, err := h.Ingest.Ingest(r.Context(), reading)
	if err != nil {
		if errors.Is(err, service.ErrInvalidReading) {
			writeError(w, http.StatusBadRequest, domain.CodeMalformedEnvelope, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, domain.CodeInternal, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, verdict)
}
