package metrics

import (
	"net/http"

	"github.com/Wyydra/yasignal/internal/core/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "yasignal"

// Prometheus implements port.Metrics on its own registry, so several
// instances can coexist in one process.
type Prometheus struct {
	registry *prometheus.Registry

	clients   prometheus.Gauge
	routed    *prometheus.CounterVec
	dropped   *prometheus.CounterVec
	phases    *prometheus.CounterVec
	readings  *prometheus.CounterVec
	telemetry *prometheus.CounterVec
}

func NewPrometheus() *Prometheus {
	p := &Prometheus{
		registry: prometheus.NewRegistry(),
		clients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connected_clients",
			Help:      "Clients currently registered.",
		}),
		routed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signals_routed_total",
			Help:      "Signals forwarded to their target, by type.",
		}, []string{"type"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signals_dropped_total",
			Help:      "Signaling messages rejected, by error code.",
		}, []string{"code"}),
		phases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_transitions_total",
			Help:      "Negotiation sessions entering each phase.",
		}, []string{"phase"}),
		readings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingested_readings_total",
			Help:      "Device readings ingested, by anomaly verdict.",
		}, []string{"anomaly"}),
		telemetry: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "telemetry_dropped_total",
			Help:      "Telemetry events not delivered, by reason.",
		}, []string{"reason"}),
	}
	p.registry.MustRegister(
		p.clients,
		p.routed,
		p.dropped,
		p.phases,
		p.readings,
		p.telemetry,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return p
}

func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}

func (p *Prometheus) Registry() *prometheus.Registry { return p.registry }

func (p *Prometheus) ClientConnected()    { p.clients.Inc() }
func (p *Prometheus) ClientDisconnected() { p.clients.Dec() }

func (p *Prometheus) MessageRouted(t domain.SignalType) {
	p.routed.WithLabelValues(string(t)).Inc()
}

func (p *Prometheus) MessageDropped(code string) {
	p.dropped.WithLabelValues(code).Inc()
}

func (p *Prometheus) SessionPhase(phase domain.Phase) {
	p.phases.WithLabelValues(phase.String()).Inc()
}

func (p *Prometheus) ReadingIngested(anomaly bool) {
	v := "false"
	if anomaly {
		v = "true"
	}
	p.readings.WithLabelValues(v).Inc()
}

func (p *Prometheus) TelemetryDropped(reason string) {
	p.telemetry.WithLabelValues(reason).Inc()
}

// Counter values exposed for tests and health reporting.

func (p *Prometheus) Routed(t domain.SignalType) prometheus.Counter {
	return p.routed.WithLabelValues(string(t))
}

func (p *Prometheus) Dropped(code string) prometheus.Counter {
	return p.dropped.WithLabelValues(code)
}

func (p *Prometheus) Phase(phase domain.Phase) prometheus.Counter {
	return p.phases.WithLabelValues(phase.String())
}
