// Package cloud115 is a client for the 115 cloud storage web API. It wraps
// the provider's HTTP endpoints behind two typed services, file storage and
// offline downloads, sharing one authenticated session constructed from the
// UID/CID/SEID cookie triplet.
//
// Connect performs no network I/O; the first service call does. Listings are
// lazy paginated cursors (see Iter). Read calls are retried on transient
// failure; mutating calls never are.
package cloud115

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/cloud115/cloud115-go/internal/protocol"
	"github.com/cloud115/cloud115-go/internal/session"
)

// Endpoints holds the base URLs of the 115 API hosts. Overridable for tests
// and proxies; zero fields fall back to the defaults.
type Endpoints struct {
	// Web is the main API host, https://webapi.115.com.
	Web string
	// Natsort serves name-ordered directory listings,
	// https://aps.115.com/natsort/files.php.
	Natsort string
	// Lixian is the offline-download task host,
	// https://lixian.115.com/lixian/.
	Lixian string
	// Check is the lightweight identity-check URL used to re-validate a
	// session after an auth-expired response.
	Check string
}

// DefaultEndpoints returns the production 115 API hosts.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		Web:     "https://webapi.115.com",
		Natsort: "https://aps.115.com/natsort/files.php",
		Lixian:  "https://lixian.115.com/lixian/",
		Check:   "https://my.115.com/?ct=guide&ac=status",
	}
}

// fill replaces zero fields with the defaults.
func (e Endpoints) fill() Endpoints {
	def := DefaultEndpoints()

	if e.Web == "" {
		e.Web = def.Web
	}

	if e.Natsort == "" {
		e.Natsort = def.Natsort
	}

	if e.Lixian == "" {
		e.Lixian = def.Lixian
	}

	if e.Check == "" {
		e.Check = def.Check
	}

	return e
}

// Client is the entry point: one authenticated session and lazily built
// service handles on top of it. A Client is safe for concurrent reads;
// mutating calls carry no cross-call ordering guarantee.
type Client struct {
	sess      *session.Manager
	endpoints Endpoints
	logger    *slog.Logger
	pageSize  int

	storageOnce sync.Once
	storage     *StorageService
	offlineOnce sync.Once
	offline     *OfflineService
}

// clientConfig collects option state before construction.
type clientConfig struct {
	endpoints Endpoints
	logger    *slog.Logger
	pageSize  int
	agentOpts []protocol.Option
}

// Option configures a Client at Connect time.
type Option func(*clientConfig)

// WithLogger sets the logger used by the session and services.
// Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *clientConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *clientConfig) {
		c.agentOpts = append(c.agentOpts, protocol.WithHTTPClient(h))
	}
}

// WithEndpoints overrides the API hosts. Zero fields keep their defaults.
func WithEndpoints(e Endpoints) Option {
	return func(c *clientConfig) {
		c.endpoints = e
	}
}

// WithUserAgent overrides the User-Agent header sent on every request.
func WithUserAgent(ua string) Option {
	return func(c *clientConfig) {
		c.agentOpts = append(c.agentOpts, protocol.WithUserAgent(ua))
	}
}

// WithRateLimit overrides the client-side request rate budget.
func WithRateLimit(limit rate.Limit, burst int) Option {
	return func(c *clientConfig) {
		c.agentOpts = append(c.agentOpts, protocol.WithRateLimit(limit, burst))
	}
}

// WithCallTimeout overrides the per-attempt HTTP timeout.
func WithCallTimeout(d time.Duration) Option {
	return func(c *clientConfig) {
		c.agentOpts = append(c.agentOpts, protocol.WithCallTimeout(d))
	}
}

// WithPageSize overrides the listing page size. The provider's own default
// page length is 115 entries.
func WithPageSize(n int) Option {
	return func(c *clientConfig) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// defaultPageSize matches the page length the provider's own web client
// requests.
const defaultPageSize = 115

// Connect validates the credential shape and builds a client with an Active
// session. It performs no network I/O, so it cannot fail for auth reasons —
// only for a malformed credential (ErrInvalidCredential). The first real
// call triggers the first network round trip.
func Connect(cred Credential, opts ...Option) (*Client, error) {
	if err := cred.Valid(); err != nil {
		return nil, err
	}

	cfg := &clientConfig{
		endpoints: DefaultEndpoints(),
		logger:    slog.Default(),
		pageSize:  defaultPageSize,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	cfg.endpoints = cfg.endpoints.fill()

	sess := session.New(
		protocol.Credential{UID: cred.UID, CID: cred.CID, SEID: cred.SEID},
		cfg.endpoints.Check,
		cfg.logger,
		cfg.agentOpts...,
	)

	return &Client{
		sess:      sess,
		endpoints: cfg.endpoints,
		logger:    cfg.logger,
		pageSize:  cfg.pageSize,
	}, nil
}

// Storage returns the file-storage service. Repeated calls return the same
// handle; it shares the client's session.
func (c *Client) Storage() *StorageService {
	c.storageOnce.Do(func() {
		c.storage = &StorageService{
			sess:      c.sess,
			endpoints: c.endpoints,
			logger:    c.logger,
			pageSize:  c.pageSize,
		}
	})

	return c.storage
}

// Offline returns the offline-download service. Repeated calls return the
// same handle; it shares the client's session.
func (c *Client) Offline() *OfflineService {
	c.offlineOnce.Do(func() {
		c.offline = &OfflineService{
			sess:      c.sess,
			endpoints: c.endpoints,
			logger:    c.logger,
		}
	})

	return c.offline
}

// Expired reports whether the session has been invalidated. Once true,
// every call fails fast with ErrSessionExpired until a new Connect.
func (c *Client) Expired() bool {
	return c.sess.State() == session.Expired
}
