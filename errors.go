package cloud115

import (
	"errors"

	"github.com/cloud115/cloud115-go/internal/protocol"
	"github.com/cloud115/cloud115-go/internal/session"
)

// Errors reported by this package. Check with errors.Is; RemoteError
// additionally carries the provider's status code and message for callers
// that need to inspect it with errors.As.
var (
	// ErrInvalidCredential is returned by Connect when the credential
	// triplet is malformed. Purely local — Connect performs no network I/O.
	ErrInvalidCredential = errors.New("cloud115: invalid credential")

	// ErrInvalidSource is reported per source by OfflineService.AddURLs
	// when a source string is not a magnet, ed2k, or HTTP(S) URL.
	ErrInvalidSource = errors.New("cloud115: invalid source")

	// ErrNotFound is returned when a file or directory ID does not resolve.
	ErrNotFound = protocol.ErrNotFound

	// ErrTransport is returned for network-level failures, after the
	// transport has exhausted its retry budget for read calls.
	ErrTransport = protocol.ErrTransport

	// ErrSessionExpired is returned once the session cookies have been
	// rejected and re-validation failed. The client is unusable from then
	// on; obtain fresh cookies and Connect again.
	ErrSessionExpired = session.ErrSessionExpired
)

// RemoteError is a failure the 115 service reported, carrying the provider
// status code and message. Mutating calls are never retried on it.
type RemoteError = protocol.RemoteError
