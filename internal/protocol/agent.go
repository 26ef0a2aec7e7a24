package protocol

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// Retry and backoff constants. Only idempotent (read) requests are retried;
// mutating calls go out exactly once so a flaky network cannot duplicate
// side effects.
const (
	maxReadAttempts = 3
	baseBackoff     = 500 * time.Millisecond
	maxBackoff      = 15 * time.Second
	backoffFactor   = 2.0
	jitterFraction  = 0.25
)

// defaultCallTimeout bounds a single HTTP attempt. Prevents a hung
// connection from blocking a caller indefinitely.
const defaultCallTimeout = 30 * time.Second

// defaultUserAgent is sent on every request. 115 rejects clients with an
// empty or obviously non-browser User-Agent on some endpoints.
const defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) cloud115-go/0.1"

// defaultRateLimit is the client-side request budget. 115 throttles
// aggressively; staying under ~5 req/s avoids tripping it in practice.
const (
	defaultRateLimit = rate.Limit(5)
	defaultRateBurst = 5
)

// Credential carries the three identity cookies 115 issues at login.
type Credential struct {
	UID  string
	CID  string
	SEID string
}

// CredentialSource provides the cookies attached to every outbound call.
// Defined at the consumer per Go convention "accept interfaces, return
// structs"; the session layer provides the real implementation.
type CredentialSource interface {
	Cookies() Credential
}

// Request describes a single typed call against a 115 endpoint.
// URL is absolute — the API is spread over several hosts.
type Request struct {
	Method string
	URL    string
	Query  url.Values
	Form   url.Values

	// Idempotent enables transparent retry on transient failure.
	// Mutating calls must leave it false.
	Idempotent bool
}

// Agent issues authenticated HTTP calls against the 115 API. It handles
// cookie injection, per-call timeouts, rate limiting, retry with exponential
// backoff for reads, and envelope error classification.
type Agent struct {
	httpClient  *http.Client
	creds       CredentialSource
	logger      *slog.Logger
	limiter     *rate.Limiter
	userAgent   string
	callTimeout time.Duration

	// sleepFunc is called to wait between retries. Defaults to timeSleep.
	// Tests override this to avoid real delays.
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// Option configures an Agent.
type Option func(*Agent)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(a *Agent) {
		if h != nil {
			a.httpClient = h
		}
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(a *Agent) {
		if ua != "" {
			a.userAgent = ua
		}
	}
}

// WithRateLimit overrides the client-side request rate budget.
func WithRateLimit(limit rate.Limit, burst int) Option {
	return func(a *Agent) {
		a.limiter = rate.NewLimiter(limit, burst)
	}
}

// WithCallTimeout overrides the per-attempt timeout.
func WithCallTimeout(d time.Duration) Option {
	return func(a *Agent) {
		if d > 0 {
			a.callTimeout = d
		}
	}
}

// NewAgent creates a transport agent for the given credential source.
func NewAgent(creds CredentialSource, logger *slog.Logger, opts ...Option) *Agent {
	if logger == nil {
		logger = slog.Default()
	}

	a := &Agent{
		httpClient:  http.DefaultClient,
		creds:       creds,
		logger:      logger,
		limiter:     rate.NewLimiter(defaultRateLimit, defaultRateBurst),
		userAgent:   defaultUserAgent,
		callTimeout: defaultCallTimeout,
		sleepFunc:   timeSleep,
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// CallJSON executes the request and decodes the response body into out.
// The 115 failure envelope is checked first, so out only sees success
// payloads. A nil out discards the body (void calls like delete/move).
func (a *Agent) CallJSON(ctx context.Context, req *Request, out any) error {
	body, err := a.roundTrip(ctx, req)
	if err != nil {
		return err
	}

	if err := checkEnvelope(body); err != nil {
		return err
	}

	if out == nil {
		return nil
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("protocol: decoding %s response: %w", req.URL, err)
	}

	return nil
}

// roundTrip performs the HTTP exchange, retrying idempotent requests on
// transient failure, and returns the raw response body.
func (a *Agent) roundTrip(ctx context.Context, req *Request) ([]byte, error) {
	fullURL := req.URL
	if len(req.Query) > 0 {
		fullURL += "?" + req.Query.Encode()
	}

	reqID := uuid.NewString()

	var attempt int
	for {
		if err := a.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("protocol: request canceled: %w", err)
		}

		status, body, err := a.doOnce(ctx, req, fullURL)
		if err != nil {
			// Context cancellation is not retryable.
			if ctx.Err() != nil {
				return nil, fmt.Errorf("protocol: request canceled: %w", ctx.Err())
			}

			if req.Idempotent && attempt < maxReadAttempts-1 {
				backoff := calcBackoff(attempt)
				a.logger.Warn("retrying after network error",
					slog.String("request_id", reqID),
					slog.String("url", req.URL),
					slog.Int("attempt", attempt+1),
					slog.Duration("backoff", backoff),
					slog.String("error", err.Error()),
				)

				if sleepErr := a.sleepFunc(ctx, backoff); sleepErr != nil {
					return nil, fmt.Errorf("protocol: request canceled: %w", sleepErr)
				}

				attempt++

				continue
			}

			return nil, fmt.Errorf("%w: %s %s: %v", ErrTransport, req.Method, req.URL, err)
		}

		// 2xx — success.
		if status >= http.StatusOK && status < http.StatusMultipleChoices {
			a.logger.Debug("request succeeded",
				slog.String("request_id", reqID),
				slog.String("url", req.URL),
				slog.Int("status", status),
			)

			return body, nil
		}

		if req.Idempotent && isRetryable(status) && attempt < maxReadAttempts-1 {
			backoff := calcBackoff(attempt)
			a.logger.Warn("retrying after HTTP error",
				slog.String("request_id", reqID),
				slog.String("url", req.URL),
				slog.Int("status", status),
				slog.Int("attempt", attempt+1),
				slog.Duration("backoff", backoff),
			)

			if err := a.sleepFunc(ctx, backoff); err != nil {
				return nil, fmt.Errorf("protocol: request canceled: %w", err)
			}

			attempt++

			continue
		}

		return nil, &RemoteError{
			StatusCode: status,
			Message:    strings.TrimSpace(string(body)),
			Raw:        body,
			Err:        classifyStatus(status),
		}
	}
}

// doOnce executes a single HTTP attempt (no retry), bounded by the
// per-call timeout, and returns the status code and full response body.
func (a *Agent) doOnce(ctx context.Context, req *Request, fullURL string) (int, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, a.callTimeout)
	defer cancel()

	var body io.Reader
	if len(req.Form) > 0 {
		body = strings.NewReader(req.Form.Encode())
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, fullURL, body)
	if err != nil {
		return 0, nil, fmt.Errorf("creating request: %w", err)
	}

	httpReq.Header.Set("User-Agent", a.userAgent)

	if body != nil {
		httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	cred := a.creds.Cookies()
	for _, c := range []struct{ name, value string }{
		{"UID", cred.UID},
		{"CID", cred.CID},
		{"SEID", cred.SEID},
	} {
		if c.value != "" {
			httpReq.AddCookie(&http.Cookie{Name: c.name, Value: c.value})
		}
	}

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("reading response body: %w", err)
	}

	return resp.StatusCode, respBody, nil
}

// calcBackoff computes exponential backoff with ±25% jitter.
func calcBackoff(attempt int) time.Duration {
	backoff := float64(baseBackoff) * math.Pow(backoffFactor, float64(attempt))
	if backoff > float64(maxBackoff) {
		backoff = float64(maxBackoff)
	}

	jitter := backoff * jitterFraction * (rand.Float64()*2 - 1) //nolint:gosec // jitter does not need crypto rand
	backoff += jitter

	return time.Duration(backoff)
}

// timeSleep waits for the given duration or until the context is canceled.
// It is the default sleepFunc for Agent.
func timeSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
