package http

import (
	"encoding/json"
	"net/http"

	"github.com/Wyydra/yasignal/internal/adapter/driven/gateway/ws"
	"github.com/Wyydra/yasignal/internal/config"
	"github.com/Wyydra/yasignal/internal/core/port"
	"github.com/Wyydra/yasignal/internal/core/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Deps are the services the HTTP surface drives.
type Deps struct {
	Router     *service.Router
	Ingest     *service.IngestService
	Hub        *ws.Hub
	Detector   port.AnomalyDetector
	Benchmark  port.AnomalyBenchmarker
	Telemetry  port.TelemetrySink
	Metrics    http.Handler
	ICEServers []webrtc.ICEServer
	Auth       *Authenticator
}

type Handler struct {
	Deps
	cfg      config.Config
	upgrader websocket.Upgrader
	ingest   *rate.Limiter
}

func NewHandler(deps Deps, cfg config.Config) *Handler {
	h := &Handler{
		Deps:   deps,
		cfg:    cfg,
		ingest: rate.NewLimiter(rate.Limit(cfg.IngestRate), cfg.IngestBurst),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(cfg.AllowedOrigins),
	}
	return h
}

func (h *Handler) NewRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/ws", h.ServeWS)
	r.Post("/ingest", h.ServeIngest)
	r.Post("/telemetry", h.ServeTelemetry)
	r.Get("/ice-servers", h.ServeICEServers)
	r.Get("/healthz", h.ServeHealth)
	r.Get("/anomaly/benchmark", h.ServeBenchmark)
	if h.Metrics != nil {
		r.Handle("/metrics", h.Metrics)
	}

	if h.cfg.StaticDir != "" {
		fs := http.FileServer(http.Dir(h.cfg.StaticDir))
		r.Handle("/*", fs)
	}

	return r
}

func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		if len(set) == 0 {
			return true
		}
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("Failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"code": code, "message": message})
}
