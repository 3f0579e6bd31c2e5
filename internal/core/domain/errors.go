package domain

import "errors"

var (
	ErrEmptyClientID          = errors.New("empty client id")
	ErrDuplicateID            = errors.New("client id already registered")
	ErrNotFound               = errors.New("client not found")
	ErrUnknownTarget          = errors.New("unknown target")
	ErrMalformedEnvelope      = errors.New("malformed envelope")
	ErrUnsupportedMessageType = errors.New("unsupported message type")
	ErrOutOfOrderMessage      = errors.New("out of order message")
	ErrSenderMismatch         = errors.New("envelope sender does not match connection")
	ErrSendBufferFull         = errors.New("send buffer full")
	ErrEndpointClosed         = errors.New("endpoint closed")
	ErrRateLimited            = errors.New("rate limited")
	ErrUnauthorized           = errors.New("unauthorized")
	ErrCapabilityUnavailable  = errors.New("capability unavailable")
	ErrTelemetryDelivery      = errors.New("telemetry delivery failure")
)

// Wire error codes sent back to clients in error frames.
const (
	CodeDuplicateID            = "DuplicateId"
	CodeNotFound               = "NotFound"
	CodeUnknownTarget          = "UnknownTarget"
	CodeMalformedEnvelope      = "MalformedEnvelope"
	CodeUnsupportedMessageType = "UnsupportedMessageType"
	CodeOutOfOrderMessage      = "OutOfOrderMessage"
	CodeSenderMismatch         = "SenderMismatch"
	CodeDeliveryFailed         = "DeliveryFailed"
	CodeRateLimited            = "RateLimited"
	CodeUnauthorized           = "Unauthorized"
	CodeInternal               = "Internal"
)

var codes = []struct {
	err  error
	code string
}{
	{ErrDuplicateID, CodeDuplicateID},
	{ErrUnknownTarget, CodeUnknownTarget},
	{ErrNotFound, CodeNotFound},
	{ErrMalformedEnvelope, CodeMalformedEnvelope},
	{ErrUnsupportedMessageType, CodeUnsupportedMessageType},
	{ErrOutOfOrderMessage, CodeOutOfOrderMessage},
	{ErrSenderMismatch, CodeSenderMismatch},
	{ErrSendBufferFull, CodeDeliveryFailed},
	{ErrEndpointClosed, CodeDeliveryFailed},
	{ErrRateLimited, CodeRateLimited},
	{ErrUnauthorized, CodeUnauthorized},
}

// Code maps an error to the code reported to clients.
func Code(err error) string {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeInternal
}
