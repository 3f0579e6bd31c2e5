package service

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/Wyydra/yasignal/internal/core/domain"
)

type errorFrame struct {
	Code    string
	Message string
	Peer    domain.ClientID
}

type fakeEndpoint struct {
	id     domain.ClientID
	connID domain.ConnID

	mu      sync.Mutex
	signals []domain.Envelope
	errors  []errorFrame
	byes    []domain.ClientID
	sendErr error
	closed  bool
}

func newEndpoint(id string) *fakeEndpoint {
	return &fakeEndpoint{id: domain.ClientID(id), connID: domain.NewConnID()}
}

func (e *fakeEndpoint) ID() domain.ClientID   { return e.id }
func (e *fakeEndpoint) ConnID() domain.ConnID { return e.connID }

func (e *fakeEndpoint) SendSignal(env domain.Envelope) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sendErr != nil {
		return e.sendErr
	}
	e.signals = append(e.signals, env)
	return nil
}

func (e *fakeEndpoint) SendError(code, message string, peer domain.ClientID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.errors = append(e.errors, errorFrame{Code: code, Message: message, Peer: peer})
	return nil
}

func (e *fakeEndpoint) SendBye(peer domain.ClientID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.byes = append(e.byes, peer)
	return nil
}

func (e *fakeEndpoint) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

func (e *fakeEndpoint) failSends(err error) {
	e.mu.Lock()
	e.sendErr = err
	e.mu.Unlock()
}

func (e *fakeEndpoint) Signals() []domain.Envelope {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]domain.Envelope(nil), e.signals...)
}

func (e *fakeEndpoint) Errors() []errorFrame {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]errorFrame(nil), e.errors...)
}

func (e *fakeEndpoint) Byes() []domain.ClientID {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]domain.ClientID(nil), e.byes...)
}

type event struct {
	Type string
	Data map[string]any
}

type recordingSink struct {
	mu     sync.Mutex
	events []event
}

func (s *recordingSink) Report(eventType string, data map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event{Type: eventType, Data: data})
}

func (s *recordingSink) Events() []event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]event(nil), s.events...)
}

func envelope(t testing.TB, typ domain.SignalType, from, to string) *domain.Envelope {
	payload := json.RawMessage(`{"sdp":"v=0","type":"` + string(typ) + `"}`)
	if typ == domain.SignalCandidate {
		payload = json.RawMessage(`{"candidate":"candidate:1 1 udp 2122260223 10.0.0.1 54321 typ host","sdpMid":"0"}`)
	}
	sig, err := domain.NewSignal(typ, payload)
	if err != nil {
		t.Fatalf("signal: %v", err)
	}
	env, err := domain.NewEnvelope(domain.ClientID(from), domain.ClientID(to), sig)
	if err != nil {
		t.Fatalf("envelope: %v", err)
	}
	return env
}
