// Package protocol implements the low-level HTTP transport for the 115 web
// API: cookie authentication, retry with exponential backoff for idempotent
// calls, client-side rate limiting, and error classification.
package protocol

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for response classification.
// Use errors.Is(err, protocol.ErrNotFound) to check.
var (
	// ErrAuthExpired signals that the session cookies are no longer
	// accepted. The session layer intercepts it; callers above the
	// session never see it.
	ErrAuthExpired = errors.New("protocol: auth expired")

	// ErrNotFound signals that a file or directory ID did not resolve.
	ErrNotFound = errors.New("protocol: not found")

	// ErrTransport signals a network-level failure after retries were
	// exhausted (or skipped, for mutating calls).
	ErrTransport = errors.New("protocol: transport failure")
)

// Envelope error codes that mean the session is dead. 115 reports auth
// failure inside a 200 response more often than via HTTP status.
var authExpiredCodes = map[int]bool{
	99:       true,
	990001:   true,
	40101017: true,
}

// Envelope error codes that mean a file/directory ID did not resolve.
var notFoundCodes = map[int]bool{
	20018:  true,
	990002: true,
}

// CodeOrderChanged is the envelope code the file-list endpoint answers with
// when the requested sort order does not match the directory's stored order.
// The response carries the actual order; callers re-issue the page with it.
const CodeOrderChanged = 20130827

// RemoteError is a failure reported by the 115 service, either as a non-2xx
// HTTP status or as an error code inside the JSON envelope.
type RemoteError struct {
	StatusCode int    // HTTP status, 0 when the envelope carried the error
	Code       int    // envelope error code, 0 when HTTP carried the error
	Message    string
	Raw        []byte // response body, for callers that inspect quirk payloads
	Err        error  // sentinel, for errors.Is()
}

func (e *RemoteError) Error() string {
	switch {
	case e.Code != 0:
		return fmt.Sprintf("protocol: remote error %d: %s", e.Code, e.Message)
	case e.Message != "":
		return fmt.Sprintf("protocol: HTTP %d: %s", e.StatusCode, e.Message)
	default:
		return fmt.Sprintf("protocol: HTTP %d", e.StatusCode)
	}
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// classifyStatus maps a non-2xx HTTP status to a sentinel error.
// Returns nil when no sentinel applies.
func classifyStatus(code int) error {
	switch code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrAuthExpired
	case http.StatusNotFound:
		return ErrNotFound
	default:
		return nil
	}
}

// classifyCode maps an envelope error code to a sentinel error.
// Returns nil when no sentinel applies.
func classifyCode(code int) error {
	switch {
	case authExpiredCodes[code]:
		return ErrAuthExpired
	case notFoundCodes[code]:
		return ErrNotFound
	default:
		return nil
	}
}

// isRetryable reports whether the given HTTP status code should be retried
// for an idempotent request.
func isRetryable(code int) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
