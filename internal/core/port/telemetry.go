package port

// TelemetrySink reports events on a best-effort basis. Report never blocks
// and never fails the caller.
type TelemetrySink interface {
	Report(eventType string, data map[string]any)
}
