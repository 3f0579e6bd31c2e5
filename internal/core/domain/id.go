package domain

import (
	"strings"

	"github.com/google/uuid"
)

// ClientID is the caller-supplied identifier a connection registers under.
type ClientID string

// ConnID identifies one transport connection. Two connections that register
// the same ClientID one after the other get different ConnIDs.
type ConnID uuid.UUID

func NewConnID() ConnID {
	return ConnID(uuid.New())
}

func (id ConnID) String() string {
	return uuid.UUID(id).String()
}

func ParseClientID(s string) (ClientID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ErrEmptyClientID
	}
	return ClientID(s), nil
}

func (id ClientID) String() string {
	return string(id)
}

// PairKey is the unordered pair of clients a negotiation session belongs to.
type PairKey struct {
	Lo ClientID
	Hi ClientID
}

func NewPairKey(a, b ClientID) PairKey {
	if b < a {
		a, b = b, a
	}
	return PairKey{Lo: a, Hi: b}
}

// Other returns the member of the pair that is not id.
func (k PairKey) Other(id ClientID) ClientID {
	if k.Lo == id {
		return k.Hi
	}
	return k.Lo
}

func (k PairKey) Has(id ClientID) bool {
	return k.Lo == id || k.Hi == id
}

func (k PairKey) String() string {
	return string(k.Lo) + "<->" + string(k.Hi)
}
