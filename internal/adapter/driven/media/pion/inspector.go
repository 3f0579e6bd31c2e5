package pion

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Wyydra/yasignal/internal/core/domain"
	"github.com/pion/webrtc/v4"
)

// Inspector checks that signal payloads are well-formed WebRTC session
// descriptions and ICE candidates before they are forwarded.
type Inspector struct {
	// ParseSDP additionally requires the SDP body to parse.
	ParseSDP bool
}

func NewInspector(parseSDP bool) *Inspector {
	return &Inspector{ParseSDP: parseSDP}
}

func (i *Inspector) Inspect(sig domain.Signal) error {
	switch s := sig.(type) {
	case domain.Offer:
		return i.description(s.Description, webrtc.SDPTypeOffer)
	case domain.Answer:
		return i.description(s.Description, webrtc.SDPTypeAnswer)
	case domain.Candidate:
		return candidate(s.Candidate)
	default:
		return fmt.Errorf("unsupported signal %T", sig)
	}
}

func (i *Inspector) description(raw json.RawMessage, want webrtc.SDPType) error {
	var desc webrtc.SessionDescription
	if err := json.Unmarshal(raw, &desc); err != nil {
		return fmt.Errorf("session description: %w", err)
	}
	if desc.Type != want {
		return fmt.Errorf("session description type %q, want %q", desc.Type, want)
	}
	if strings.TrimSpace(desc.SDP) == "" {
		return errors.New("session description has empty sdp")
	}
	if i.ParseSDP {
		if _, err := desc.Unmarshal(); err != nil {
			return fmt.Errorf("sdp: %w", err)
		}
	}
	return nil
}

func candidate(raw json.RawMessage) error {
	var cand webrtc.ICECandidateInit
	if err := json.Unmarshal(raw, &cand); err != nil {
		return fmt.Errorf("ice candidate: %w", err)
	}
	// An empty candidate marks the end of gathering.
	if cand.Candidate == "" {
		return nil
	}
	c := strings.TrimPrefix(cand.Candidate, "a=")
	if !strings.HasPrefix(c, "candidate:") {
		return fmt.Errorf("ice candidate %q lacks candidate: prefix", cand.Candidate)
	}
	return nil
}
