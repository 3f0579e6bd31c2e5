package service

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Wyydra/yasignal/internal/core/domain"
	"github.com/Wyydra/yasignal/internal/core/port"
)

type session struct {
	mu         sync.Mutex
	key        domain.PairKey
	phase      domain.Phase
	caller     domain.ClientID
	callee     domain.ClientID
	candidates map[domain.ClientID]int
	reason     string
	createdAt  time.Time
	updatedAt  time.Time
	removed    bool
}

func (s *session) snapshotLocked() domain.SessionSnapshot {
	c := make(map[domain.ClientID]int, len(s.candidates))
	for k, v := range s.candidates {
		c[k] = v
	}
	return domain.SessionSnapshot{
		Pair:       s.key,
		Phase:      s.phase,
		Caller:     s.caller,
		Callee:     s.callee,
		Candidates: c,
		Reason:     s.reason,
		CreatedAt:  s.createdAt,
		UpdatedAt:  s.updatedAt,
	}
}

// peerIndex lists the sessions a client takes part in.
type peerIndex struct {
	mu     sync.Mutex
	closed bool
	pairs  map[domain.PairKey]struct{}
}

// Tracker runs one negotiation state machine per client pair. Sessions are
// locked individually; unrelated pairs never contend.
type Tracker struct {
	sessions    sync.Map // domain.PairKey -> *session
	peers       sync.Map // domain.ClientID -> *peerIndex
	established atomic.Int64
	metrics     port.Metrics
	now         func() time.Time
}

func NewTracker(metrics port.Metrics) *Tracker {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &Tracker{
		metrics: metrics,
		now:     time.Now,
	}
}

// Attach makes id eligible to take part in sessions.
func (t *Tracker) Attach(id domain.ClientID) {
	t.peers.Store(id, &peerIndex{pairs: make(map[domain.PairKey]struct{})})
}

// Detach fails and tears down every session involving id. It returns the
// sessions as they were before the disconnect, so callers can notify the
// other party of the ones that were still live.
func (t *Tracker) Detach(id domain.ClientID) []domain.SessionSnapshot {
	v, ok := t.peers.LoadAndDelete(id)
	if !ok {
		return nil
	}
	idx := v.(*peerIndex)

	idx.mu.Lock()
	idx.closed = true
	pairs := make([]domain.PairKey, 0, len(idx.pairs))
	for k := range idx.pairs {
		pairs = append(pairs, k)
	}
	idx.pairs = nil
	idx.mu.Unlock()

	var prior []domain.SessionSnapshot
	for _, key := range pairs {
		sv, ok := t.sessions.Load(key)
		if !ok {
			continue
		}
		s := sv.(*session)
		s.mu.Lock()
		if !s.removed {
			prior = append(prior, s.snapshotLocked())
			t.failLocked(s, "disconnect of "+id.String())
			t.removeLocked(s)
		}
		s.mu.Unlock()
	}
	return prior
}

// Apply validates env against the pair's state machine. When the transition
// is legal, deliver is called while the session is held and the transition
// commits only if deliver succeeds. An illegal transition fails the session
// and returns ErrOutOfOrderMessage without calling deliver.
func (t *Tracker) Apply(env domain.Envelope, deliver func() error) (domain.Phase, error) {
	s, created, err := t.acquire(env.Pair())
	if err != nil {
		return domain.PhaseIdle, err
	}
	defer s.mu.Unlock()

	next, err := transition(s, env)
	if err != nil {
		t.failLocked(s, err.Error())
		return domain.PhaseFailed, err
	}

	if deliver != nil {
		if err := deliver(); err != nil {
			if created {
				t.removeLocked(s)
			}
			return s.phase, err
		}
	}

	switch env.Signal.(type) {
	case domain.Offer:
		if s.phase != domain.PhaseOfferSent {
			s.candidates = make(map[domain.ClientID]int)
		}
		s.caller, s.callee = env.From, env.To
		s.reason = ""
	case domain.Candidate:
		s.candidates[env.From]++
	}
	t.setPhaseLocked(s, next)
	return next, nil
}

// Acknowledge completes a negotiation whose answer has been delivered.
// It reports whether the session moved to Established.
func (t *Tracker) Acknowledge(key domain.PairKey) bool {
	v, ok := t.sessions.Load(key)
	if !ok {
		return false
	}
	s := v.(*session)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.removed || s.phase != domain.PhaseAnswerReceived {
		return false
	}
	t.setPhaseLocked(s, domain.PhaseEstablished)
	t.established.Add(1)
	return true
}

// Teardown removes the session for key and returns its last state.
func (t *Tracker) Teardown(key domain.PairKey) (domain.SessionSnapshot, error) {
	v, ok := t.sessions.Load(key)
	if !ok {
		return domain.SessionSnapshot{}, fmt.Errorf("session %s: %w", key, domain.ErrNotFound)
	}
	s := v.(*session)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.removed {
		return domain.SessionSnapshot{}, fmt.Errorf("session %s: %w", key, domain.ErrNotFound)
	}
	snap := s.snapshotLocked()
	t.removeLocked(s)
	return snap, nil
}

func (t *Tracker) Session(key domain.PairKey) (domain.SessionSnapshot, bool) {
	v, ok := t.sessions.Load(key)
	if !ok {
		return domain.SessionSnapshot{}, false
	}
	s := v.(*session)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.removed {
		return domain.SessionSnapshot{}, false
	}
	return s.snapshotLocked(), true
}

// Len counts live sessions.
func (t *Tracker) Len() int {
	n := 0
	t.sessions.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Established counts negotiations that have completed since start.
func (t *Tracker) Established() int64 {
	return t.established.Load()
}

// acquire returns the locked session for key, creating and indexing it when
// absent. Both parties must be attached.
func (t *Tracker) acquire(key domain.PairKey) (*session, bool, error) {
	for {
		now := t.now()
		fresh := &session{
			key:        key,
			phase:      domain.PhaseIdle,
			candidates: make(map[domain.ClientID]int),
			createdAt:  now,
			updatedAt:  now,
		}
		v, loaded := t.sessions.LoadOrStore(key, fresh)
		s := v.(*session)
		s.mu.Lock()
		if s.removed {
			// Lost a race with a teardown; the map entry is gone or going.
			s.mu.Unlock()
			continue
		}
		if loaded {
			return s, false, nil
		}
		if err := t.indexLocked(s); err != nil {
			t.removeLocked(s)
			s.mu.Unlock()
			return nil, false, err
		}
		return s, true, nil
	}
}

func (t *Tracker) indexLocked(s *session) error {
	for _, id := range []domain.ClientID{s.key.Lo, s.key.Hi} {
		v, ok := t.peers.Load(id)
		if !ok {
			return fmt.Errorf("session peer %q: %w", id, domain.ErrUnknownTarget)
		}
		idx := v.(*peerIndex)
		idx.mu.Lock()
		if idx.closed {
			idx.mu.Unlock()
			return fmt.Errorf("session peer %q: %w", id, domain.ErrUnknownTarget)
		}
		idx.pairs[s.key] = struct{}{}
		idx.mu.Unlock()
	}
	return nil
}

func (t *Tracker) removeLocked(s *session) {
	s.removed = true
	t.sessions.CompareAndDelete(s.key, s)
	for _, id := range []domain.ClientID{s.key.Lo, s.key.Hi} {
		v, ok := t.peers.Load(id)
		if !ok {
			continue
		}
		idx := v.(*peerIndex)
		idx.mu.Lock()
		if idx.pairs != nil {
			delete(idx.pairs, s.key)
		}
		idx.mu.Unlock()
	}
}

func (t *Tracker) failLocked(s *session, reason string) {
	s.reason = reason
	t.setPhaseLocked(s, domain.PhaseFailed)
}

func (t *Tracker) setPhaseLocked(s *session, p domain.Phase) {
	s.updatedAt = t.now()
	if s.phase == p {
		return
	}
	s.phase = p
	t.metrics.SessionPhase(p)
}

func transition(s *session, env domain.Envelope) (domain.Phase, error) {
	switch env.Signal.(type) {
	case domain.Offer:
		switch s.phase {
		case domain.PhaseIdle, domain.PhaseFailed:
			return domain.PhaseOfferSent, nil
		case domain.PhaseOfferSent:
			if env.From == s.caller {
				return domain.PhaseOfferSent, nil
			}
			return 0, outOfOrder(env, s.phase, "callee offered while an offer is pending")
		default:
			return 0, outOfOrder(env, s.phase, "")
		}
	case domain.Answer:
		if s.phase != domain.PhaseOfferSent {
			return 0, outOfOrder(env, s.phase, "")
		}
		if env.From != s.callee {
			return 0, outOfOrder(env, s.phase, "answer must come from the callee")
		}
		return domain.PhaseAnswerReceived, nil
	case domain.Candidate:
		switch s.phase {
		case domain.PhaseOfferSent, domain.PhaseAnswerReceived, domain.PhaseEstablished:
			return s.phase, nil
		default:
			return 0, outOfOrder(env, s.phase, "")
		}
	default:
		return 0, fmt.Errorf("%w: %T", domain.ErrUnsupportedMessageType, env.Signal)
	}
}

func outOfOrder(env domain.Envelope, p domain.Phase, detail string) error {
	if detail == "" {
		return fmt.Errorf("%w: %s while %s", domain.ErrOutOfOrderMessage, env.Signal.Type(), p)
	}
	return fmt.Errorf("%w: %s while %s: %s", domain.ErrOutOfOrderMessage, env.Signal.Type(), p, detail)
}
