package domain

import (
	"encoding/json"
	"fmt"
)

type SignalType string

const (
	SignalOffer     SignalType = "offer"
	SignalAnswer    SignalType = "answer"
	SignalCandidate SignalType = "candidate"
)

// Signal is one of Offer, Answer or Candidate. The set is closed: only this
// package can add variants.
type Signal interface {
	Type() SignalType
	Payload() json.RawMessage
	isSignal()
}

// Offer carries the caller's session description.
type Offer struct{ Description json.RawMessage }

// Answer carries the callee's session description.
type Answer struct{ Description json.RawMessage }

// Candidate carries one trickled ICE candidate.
type Candidate struct{ Candidate json.RawMessage }

func (Offer) Type() SignalType     { return SignalOffer }
func (Answer) Type() SignalType    { return SignalAnswer }
func (Candidate) Type() SignalType { return SignalCandidate }

func (s Offer) Payload() json.RawMessage     { return s.Description }
func (s Answer) Payload() json.RawMessage    { return s.Description }
func (s Candidate) Payload() json.RawMessage { return s.Candidate }

func (Offer) isSignal()     {}
func (Answer) isSignal()    {}
func (Candidate) isSignal() {}

// NewSignal builds the variant named by t around payload.
func NewSignal(t SignalType, payload json.RawMessage) (Signal, error) {
	switch t {
	case SignalOffer:
		return Offer{Description: payload}, nil
	case SignalAnswer:
		return Answer{Description: payload}, nil
	case SignalCandidate:
		return Candidate{Candidate: payload}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedMessageType, string(t))
	}
}
