package telemetry

import "github.com/rs/zerolog/log"

// LogSink writes events to the process log. It is used when no telemetry
// endpoint is configured.
type LogSink struct{}

func (LogSink) Report(eventType string, data map[string]any) {
	log.Info().Str("event", eventType).Fields(data).Msg("Telemetry")
}
