// Package session owns the authenticated session lifecycle: it runs typed
// operations through the transport agent, intercepts auth-expiry signals,
// and coordinates at most one refresh cycle at a time.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/cloud115/cloud115-go/internal/protocol"
)

// ErrSessionExpired is returned once a refresh cycle has failed. The session
// is terminal from then on; callers must connect again with fresh cookies.
var ErrSessionExpired = errors.New("session: expired")

// State is the session lifecycle state.
type State int

const (
	Active State = iota
	Refreshing
	Expired
)

func (s State) String() string {
	switch s {
	case Active:
		return "active"
	case Refreshing:
		return "refreshing"
	case Expired:
		return "expired"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Manager owns one transport agent and one credential triplet. All service
// calls go through Call, which converts the transport's auth-expired signal
// into a single refresh attempt shared across concurrent callers.
type Manager struct {
	agent    *protocol.Agent
	cred     protocol.Credential
	checkURL string
	logger   *slog.Logger

	mu    sync.Mutex
	state State

	// refreshGroup collapses concurrent refresh attempts into one network
	// call; losers wait on the winner's outcome.
	refreshGroup singleflight.Group
}

// New creates a session manager in the Active state. No network I/O happens
// until the first Call.
func New(cred protocol.Credential, checkURL string, logger *slog.Logger, opts ...protocol.Option) *Manager {
	if logger == nil {
		logger = slog.Default()
	}

	m := &Manager{
		cred:     cred,
		checkURL: checkURL,
		logger:   logger,
		state:    Active,
	}
	m.agent = protocol.NewAgent(m, logger, opts...)

	return m
}

// Cookies implements protocol.CredentialSource. The triplet is immutable
// for the life of the session.
func (m *Manager) Cookies() protocol.Credential {
	return m.cred
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.state
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	prev := m.state
	m.state = s
	m.mu.Unlock()

	if prev != s {
		m.logger.Debug("session state changed",
			slog.String("from", prev.String()),
			slog.String("to", s.String()),
		)
	}
}

// Call runs one typed operation through the transport. On auth expiry it
// performs one refresh cycle and retries the operation once; an auth
// rejection means the server did not act on the request, so the retry is
// safe even for mutating calls. Once the session is Expired every Call
// fails fast without network I/O.
func (m *Manager) Call(ctx context.Context, req *protocol.Request, out any) error {
	if m.State() == Expired {
		return ErrSessionExpired
	}

	err := m.agent.CallJSON(ctx, req, out)
	if !errors.Is(err, protocol.ErrAuthExpired) {
		return err
	}

	if refreshErr := m.refresh(ctx); refreshErr != nil {
		return refreshErr
	}

	err = m.agent.CallJSON(ctx, req, out)
	if errors.Is(err, protocol.ErrAuthExpired) {
		// Fresh cookies still rejected: the session is gone for good.
		m.setState(Expired)
		return fmt.Errorf("%w: credentials rejected after refresh", ErrSessionExpired)
	}

	return err
}

// refresh re-validates the stored cookies against the identity-check
// endpoint. Concurrent callers share one attempt through the singleflight
// group. There is no way to mint a new triplet from a dead one, so a failed
// check moves the session to the terminal Expired state.
func (m *Manager) refresh(ctx context.Context) error {
	_, err, shared := m.refreshGroup.Do("refresh", func() (any, error) {
		m.setState(Refreshing)
		m.logger.Info("auth expired, re-validating session")

		if checkErr := m.checkAlive(ctx); checkErr != nil {
			m.setState(Expired)
			m.logger.Warn("session re-validation failed",
				slog.String("error", checkErr.Error()),
			)

			return nil, fmt.Errorf("%w: %v", ErrSessionExpired, checkErr)
		}

		m.setState(Active)
		m.logger.Info("session re-validated")

		return nil, nil
	})

	if shared {
		m.logger.Debug("joined in-flight refresh")
	}

	return err
}

// checkAlive issues the lightweight identity check with the current cookies.
func (m *Manager) checkAlive(ctx context.Context) error {
	req := &protocol.Request{
		Method:     http.MethodGet,
		URL:        m.checkURL,
		Idempotent: true,
	}

	return m.agent.CallJSON(ctx, req, nil)
}
