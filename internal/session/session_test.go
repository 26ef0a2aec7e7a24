package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/cloud115/cloud115-go/internal/protocol"
)

var testCred = protocol.Credential{UID: "u1", CID: "c1", SEID: "s1"}

const (
	okBody          = `{"state":true}`
	authExpiredBody = `{"state":false,"errcode":990001,"error":"please login"}`
)

// newTestManager wires a Manager to the given server, with the check
// endpoint at /check and no rate limiting.
func newTestManager(srvURL string) *Manager {
	return New(testCred, srvURL+"/check", nil, protocol.WithRateLimit(rate.Inf, 1))
}

func opRequest(srvURL string) *protocol.Request {
	return &protocol.Request{
		Method:     http.MethodGet,
		URL:        srvURL + "/op",
		Idempotent: true,
	}
}

func TestCall_PassThrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"state":true,"count":7}`))
	}))
	defer srv.Close()

	m := newTestManager(srv.URL)

	var out struct {
		Count int `json:"count"`
	}

	require.NoError(t, m.Call(context.Background(), opRequest(srv.URL), &out))
	assert.Equal(t, 7, out.Count)
	assert.Equal(t, Active, m.State())
}

func TestCall_RefreshThenRetry(t *testing.T) {
	var opCalls, checkCalls atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("/op", func(w http.ResponseWriter, _ *http.Request) {
		if opCalls.Add(1) == 1 {
			_, _ = w.Write([]byte(authExpiredBody))
			return
		}

		_, _ = w.Write([]byte(okBody))
	})
	mux.HandleFunc("/check", func(w http.ResponseWriter, _ *http.Request) {
		checkCalls.Add(1)
		_, _ = w.Write([]byte(okBody))
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	m := newTestManager(srv.URL)

	require.NoError(t, m.Call(context.Background(), opRequest(srv.URL), nil))
	assert.Equal(t, int32(2), opCalls.Load(), "operation retried once after refresh")
	assert.Equal(t, int32(1), checkCalls.Load())
	assert.Equal(t, Active, m.State())
}

func TestCall_RefreshFailureIsTerminal(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(authExpiredBody))
	}))
	defer srv.Close()

	m := newTestManager(srv.URL)

	err := m.Call(context.Background(), opRequest(srv.URL), nil)
	require.ErrorIs(t, err, ErrSessionExpired)
	assert.Equal(t, Expired, m.State())

	// Subsequent calls fail fast without network I/O.
	before := calls.Load()
	err = m.Call(context.Background(), opRequest(srv.URL), nil)
	require.ErrorIs(t, err, ErrSessionExpired)
	assert.Equal(t, before, calls.Load())
}

func TestCall_AuthExpiredNeverLeaks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(authExpiredBody))
	}))
	defer srv.Close()

	m := newTestManager(srv.URL)

	err := m.Call(context.Background(), opRequest(srv.URL), nil)
	require.Error(t, err)
	assert.NotErrorIs(t, err, protocol.ErrAuthExpired)
	assert.ErrorIs(t, err, ErrSessionExpired)
}

func TestCall_SecondRejectionAfterRefreshExpires(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/op", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(authExpiredBody))
	})
	mux.HandleFunc("/check", func(w http.ResponseWriter, _ *http.Request) {
		// The check endpoint still accepts the cookies, but the
		// operation keeps rejecting them.
		_, _ = w.Write([]byte(okBody))
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	m := newTestManager(srv.URL)

	err := m.Call(context.Background(), opRequest(srv.URL), nil)
	require.ErrorIs(t, err, ErrSessionExpired)
	assert.Equal(t, Expired, m.State())
}

func TestCall_ConcurrentExpiryRefreshesOnce(t *testing.T) {
	const callers = 5

	var (
		opCalls    atomic.Int32
		checkCalls atomic.Int32
		arrived    sync.WaitGroup
	)

	arrived.Add(callers)

	release := make(chan struct{})

	mux := http.NewServeMux()
	mux.HandleFunc("/op", func(w http.ResponseWriter, _ *http.Request) {
		n := opCalls.Add(1)
		if n <= callers {
			// Hold every first-round call until all callers are
			// in flight, so they observe expiry together.
			arrived.Done()
			<-release
			_, _ = w.Write([]byte(authExpiredBody))

			return
		}

		_, _ = w.Write([]byte(okBody))
	})
	mux.HandleFunc("/check", func(w http.ResponseWriter, _ *http.Request) {
		checkCalls.Add(1)
		time.Sleep(100 * time.Millisecond)
		_, _ = w.Write([]byte(okBody))
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	m := newTestManager(srv.URL)

	var done sync.WaitGroup

	errs := make([]error, callers)

	for i := 0; i < callers; i++ {
		i := i

		done.Add(1)

		go func() {
			defer done.Done()

			errs[i] = m.Call(context.Background(), opRequest(srv.URL), nil)
		}()
	}

	arrived.Wait()
	close(release)
	done.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "caller %d", i)
	}

	assert.Equal(t, int32(1), checkCalls.Load(), "exactly one refresh for concurrent expiry")
	assert.Equal(t, int32(2*callers), opCalls.Load())
	assert.Equal(t, Active, m.State())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "active", Active.String())
	assert.Equal(t, "refreshing", Refreshing.String())
	assert.Equal(t, "expired", Expired.String())
}
