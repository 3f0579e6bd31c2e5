package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Wyydra/yasignal/internal/core/domain"
	"github.com/Wyydra/yasignal/internal/core/port"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
)

// FrameBye asks the server to tear down the sender's session with "to".
const FrameBye = "bye"

// PayloadInspector checks a signal's payload before it is forwarded.
type PayloadInspector interface {
	Inspect(sig domain.Signal) error
}

type Router struct {
	registry  *Registry
	tracker   *Tracker
	telemetry port.TelemetrySink
	metrics   port.Metrics
	validate  *validator.Validate
	inspector PayloadInspector
}

func NewRouter(registry *Registry, tracker *Tracker, telemetry port.TelemetrySink, metrics port.Metrics) *Router {
	if telemetry == nil {
		telemetry = nopSink{}
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &Router{
		registry:  registry,
		tracker:   tracker,
		telemetry: telemetry,
		metrics:   metrics,
		validate:  validator.New(),
	}
}

// SetInspector enables payload inspection for every routed signal.
func (r *Router) SetInspector(i PayloadInspector) {
	r.inspector = i
}

func (r *Router) Registry() *Registry { return r.registry }
func (r *Router) Tracker() *Tracker   { return r.tracker }

// Connect registers ep and makes it eligible for negotiations.
func (r *Router) Connect(ep port.Endpoint) error {
	if err := r.registry.Register(ep); err != nil {
		r.metrics.MessageDropped(domain.Code(err))
		return err
	}
	r.tracker.Attach(ep.ID())
	r.metrics.ClientConnected()
	log.Info().
		Str("client_id", ep.ID().String()).
		Str("conn_id", ep.ConnID().String()).
		Int("count", r.registry.Len()).
		Msg("Client registered")
	return nil
}

// Disconnect fails every session ep takes part in, tells the other parties
// of live sessions, and unregisters ep. It returns the failed sessions.
// Disconnecting an endpoint that is not the one registered under its id is
// a no-op.
func (r *Router) Disconnect(ep port.Endpoint) []domain.SessionSnapshot {
	current, err := r.registry.Lookup(ep.ID())
	if err != nil || current != ep {
		return nil
	}

	prior := r.tracker.Detach(ep.ID())
	r.registry.Unregister(ep)
	r.metrics.ClientDisconnected()

	failed := make([]domain.SessionSnapshot, 0, len(prior))
	for _, snap := range prior {
		if snap.Phase != domain.PhaseFailed {
			peer := snap.Pair.Other(ep.ID())
			if target, err := r.registry.Lookup(peer); err == nil {
				if err := target.SendBye(ep.ID()); err != nil {
					log.Debug().Err(err).Str("client_id", peer.String()).Msg("Failed to notify peer of disconnect")
				}
			}
		}
		snap.Phase = domain.PhaseFailed
		snap.Reason = "disconnect of " + ep.ID().String()
		failed = append(failed, snap)
	}

	log.Info().
		Str("client_id", ep.ID().String()).
		Str("conn_id", ep.ConnID().String()).
		Int("failed_sessions", len(failed)).
		Int("count", r.registry.Len()).
		Msg("Client unregistered")
	return failed
}

// Route forwards env from sender to its target and advances the pair's
// negotiation.
func (r *Router) Route(ctx context.Context, sender port.Endpoint, env *domain.Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if env.From != sender.ID() {
		return r.reject(env, fmt.Errorf("%w: from=%q", domain.ErrSenderMismatch, env.From))
	}

	target, err := r.registry.Lookup(env.To)
	if err != nil {
		return r.reject(env, fmt.Errorf("route to %q: %w", env.To, domain.ErrUnknownTarget))
	}

	if r.inspector != nil {
		if err := r.inspector.Inspect(env.Signal); err != nil {
			return r.reject(env, fmt.Errorf("%w: %v", domain.ErrMalformedEnvelope, err))
		}
	}

	phase, err := r.tracker.Apply(*env, func() error {
		return target.SendSignal(*env)
	})
	if err != nil {
		return r.reject(env, err)
	}

	if _, ok := env.Signal.(domain.Answer); ok && r.tracker.Acknowledge(env.Pair()) {
		phase = domain.PhaseEstablished
		log.Info().Str("pair", env.Pair().String()).Msg("Negotiation established")
	}

	r.metrics.MessageRouted(env.Signal.Type())
	log.Debug().
		Str("client_id", env.From.String()).
		Str("to", env.To.String()).
		Str("type", string(env.Signal.Type())).
		Str("phase", phase.String()).
		Msg("Forwarded signal")
	return nil
}

// Teardown ends the session between sender and peer and tells the peer.
func (r *Router) Teardown(sender port.Endpoint, peer domain.ClientID) error {
	snap, err := r.tracker.Teardown(domain.NewPairKey(sender.ID(), peer))
	if err != nil {
		return err
	}
	if target, err := r.registry.Lookup(peer); err == nil {
		if err := target.SendBye(sender.ID()); err != nil {
			log.Debug().Err(err).Str("client_id", peer.String()).Msg("Failed to notify peer of teardown")
		}
	}
	log.Info().
		Str("pair", snap.Pair.String()).
		Str("phase", snap.Phase.String()).
		Str("by", sender.ID().String()).
		Msg("Session torn down")
	return nil
}

// HandleFrame decodes one inbound frame from sender and dispatches it. Any
// failure is reported back to sender as an error frame; the connection stays
// usable either way.
func (r *Router) HandleFrame(ctx context.Context, sender port.Endpoint, raw []byte) error {
	f, err := r.decode(raw)
	if err != nil {
		r.report(sender.ID(), "", "", err)
		return r.replyError(sender, err, "")
	}

	if f.Type == FrameBye {
		if f.From != sender.ID().String() {
			err = fmt.Errorf("%w: from=%q", domain.ErrSenderMismatch, f.From)
		} else {
			err = r.Teardown(sender, domain.ClientID(f.To))
		}
		if err != nil {
			r.report(sender.ID(), f.Type, domain.ClientID(f.To), err)
			return r.replyError(sender, err, domain.ClientID(f.To))
		}
		return nil
	}

	env, err := f.envelope()
	if err != nil {
		r.report(sender.ID(), f.Type, domain.ClientID(f.To), err)
		return r.replyError(sender, err, domain.ClientID(f.To))
	}
	if err := r.Route(ctx, sender, env); err != nil {
		return r.replyError(sender, err, env.To)
	}
	return nil
}

// RejectFrame reports a frame the transport refused before decoding it.
func (r *Router) RejectFrame(sender port.Endpoint, err error) error {
	r.report(sender.ID(), "", "", err)
	return r.replyError(sender, err, "")
}

// DecodeEnvelope parses a wire envelope.
func (r *Router) DecodeEnvelope(raw []byte) (*domain.Envelope, error) {
	f, err := r.decode(raw)
	if err != nil {
		return nil, err
	}
	return f.envelope()
}

type frame struct {
	Type    string          `json:"type" validate:"required"`
	From    string          `json:"from" validate:"required"`
	To      string          `json:"to" validate:"required,nefield=From"`
	Payload json.RawMessage `json:"payload"`
}

func (r *Router) decode(raw []byte) (frame, error) {
	var f frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return frame{}, fmt.Errorf("%w: %v", domain.ErrMalformedEnvelope, err)
	}
	if err := r.validate.Struct(f); err != nil {
		return frame{}, fmt.Errorf("%w: %v", domain.ErrMalformedEnvelope, err)
	}
	return f, nil
}

func (f frame) envelope() (*domain.Envelope, error) {
	payload := bytes.TrimSpace(f.Payload)
	if len(payload) == 0 || payload[0] != '{' {
		return nil, fmt.Errorf("%w: payload must be a JSON object", domain.ErrMalformedEnvelope)
	}
	sig, err := domain.NewSignal(domain.SignalType(f.Type), json.RawMessage(payload))
	if err != nil {
		return nil, err
	}
	env, err := domain.NewEnvelope(domain.ClientID(f.From), domain.ClientID(f.To), sig)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedEnvelope, err)
	}
	return env, nil
}

func (r *Router) reject(env *domain.Envelope, err error) error {
	r.report(env.From, string(env.Signal.Type()), env.To, err)
	return err
}

func (r *Router) report(from domain.ClientID, msgType string, to domain.ClientID, err error) {
	code := domain.Code(err)
	r.metrics.MessageDropped(code)
	log.Warn().
		Err(err).
		Str("client_id", from.String()).
		Str("to", to.String()).
		Str("type", msgType).
		Str("code", code).
		Msg("Dropped signaling message")
	r.telemetry.Report("signaling_error", map[string]any{
		"code":  code,
		"error": err.Error(),
		"from":  from.String(),
		"to":    to.String(),
		"type":  msgType,
	})
}

func (r *Router) replyError(sender port.Endpoint, cause error, peer domain.ClientID) error {
	if err := sender.SendError(domain.Code(cause), cause.Error(), peer); err != nil && !errors.Is(err, domain.ErrEndpointClosed) {
		log.Debug().Err(err).Str("client_id", sender.ID().String()).Msg("Failed to send error frame")
	}
	return cause
}
