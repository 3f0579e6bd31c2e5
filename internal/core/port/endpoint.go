package port

import "github.com/Wyydra/yasignal/internal/core/domain"

// Endpoint is one connected signaling client as seen by the core.
// Send methods enqueue and must not block on network I/O.
type Endpoint interface {
	ID() domain.ClientID
	ConnID() domain.ConnID
	SendSignal(env domain.Envelope) error
	SendError(code, message string, peer domain.ClientID) error
	SendBye(peer domain.ClientID) error
	Close() error
}
