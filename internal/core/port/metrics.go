package port

import "github.com/Wyydra/yasignal/internal/core/domain"

type Metrics interface {
	ClientConnected()
	ClientDisconnected()
	MessageRouted(t domain.SignalType)
	MessageDropped(code string)
	SessionPhase(p domain.Phase)
	ReadingIngested(anomaly bool)
	TelemetryDropped(reason string)
}
