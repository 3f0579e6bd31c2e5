package domain

import "time"

// Phase is the progress of one offer/answer negotiation.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseOfferSent
	PhaseAnswerReceived
	PhaseEstablished
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseOfferSent:
		return "offer_sent"
	case PhaseAnswerReceived:
		return "answer_received"
	case PhaseEstablished:
		return "established"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// SessionSnapshot is a copy of a negotiation session's state.
type SessionSnapshot struct {
	Pair       PairKey
	Phase      Phase
	Caller     ClientID
	Callee     ClientID
	Candidates map[ClientID]int
	Reason     string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
