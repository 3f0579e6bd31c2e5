package domain

import (
	"encoding/json"
	"errors"
)

// Envelope is a routed signaling message.
type Envelope struct {
	From   ClientID
	To     ClientID
	Signal Signal
}

func NewEnvelope(from, to ClientID, sig Signal) (*Envelope, error) {
	if from == "" || to == "" {
		return nil, errors.New("envelope requires both from and to")
	}
	if from == to {
		return nil, errors.New("envelope addressed to its own sender")
	}
	if sig == nil {
		return nil, errors.New("envelope requires a signal")
	}
	return &Envelope{From: from, To: to, Signal: sig}, nil
}

// Pair returns the session key the envelope belongs to.
func (e Envelope) Pair() PairKey {
	return NewPairKey(e.From, e.To)
}

// MarshalJSON renders the envelope in its wire form; the payload is written
// back byte for byte.
func (e Envelope) MarshalJSON() ([]byte, error) {
	type wire struct {
		Type    SignalType      `json:"type"`
		From    ClientID        `json:"from"`
		To      ClientID        `json:"to"`
		Payload json.RawMessage `json:"payload"`
	}
	return json.Marshal(wire{
		Type:    e.Signal.Type(),
		From:    e.From,
		To:      e.To,
		Payload: e.Signal.Payload(),
	})
}
