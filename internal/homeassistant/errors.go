package homeassistant

import "errors"

// Domain-specific errors for Home Assistant API operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotConnected is returned when the WebSocket connection is down.
	ErrNotConnected = errors.New("homeassistant: not connected")

	// ErrConnectionFailed is returned when dialling the WebSocket endpoint fails.
	ErrConnectionFailed = errors.New("homeassistant: connection failed")

	// ErrAuthFailed is returned when Home Assistant rejects the access token.
	ErrAuthFailed = errors.New("homeassistant: authentication failed")

	// ErrRequestFailed is returned when Home Assistant answers a request with
	// success=false, or the request cannot be sent.
	ErrRequestFailed = errors.New("homeassistant: request failed")

	// ErrTimeout is returned when no result arrives within the request timeout.
	ErrTimeout = errors.New("homeassistant: request timed out")

	// ErrEntityNotFound is returned by GetState for unknown entity ids.
	ErrEntityNotFound = errors.New("homeassistant: entity not found")

	// ErrClosed is returned after Close or after reconnection gave up.
	ErrClosed = errors.New("homeassistant: client closed")
)

// RequestError carries the error object of a failed result message.
// It wraps ErrRequestFailed.
type RequestError struct {
	Code    string
	Message string
}

func (e *RequestError) Error() string {
	return "homeassistant: " + e.Code + ": " + e.Message
}

func (e *RequestError) Unwrap() error {
	return ErrRequestFailed
}
