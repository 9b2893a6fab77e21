// Package gateway is the single chokepoint for dashboard API calls. Its
// http.RoundTripper stamps the current bearer token at send time, coordinates
// a refresh-and-retry on 401, and normalizes error payloads so every failure
// carries a trace id and timestamp.
package gateway

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

const (
	defaultTimeout      = 10 * time.Second
	defaultPollInterval = 100 * time.Millisecond
)

// SessionReader exposes the session fields the gateway needs.
type SessionReader interface {
	AccessToken() string
	Refreshing() bool
}

// Refresher is the slice of the auth coordinator the gateway calls back into.
type Refresher interface {
	Refresh(ctx context.Context) (string, error)
	Logout(ctx context.Context)
}

// Transport implements http.RoundTripper over a base transport.
type Transport struct {
	// Base is the underlying transport (default: http.DefaultTransport).
	Base http.RoundTripper

	Session SessionReader
	Auth    Refresher
	Logger  *slog.Logger

	// PollInterval is how often a request waiting on someone else's
	// in-flight refresh re-checks for completion (default: 100ms).
	PollInterval time.Duration
}

// NewClient wraps the transport in an http.Client with the standard request
// timeout.
func NewClient(t *Transport) *http.Client {
	return &http.Client{Transport: t, Timeout: defaultTimeout}
}

type ctxKey int

// retriedKey marks a request that has already been retried once after a 401.
// The mark travels in the context so no request can loop regardless of how
// many 401s it accumulates.
const retriedKey ctxKey = 0

func retried(ctx context.Context) bool {
	v, _ := ctx.Value(retriedKey).(bool)
	return v
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

func (t *Transport) logger() *slog.Logger {
	if t.Logger != nil {
		return t.Logger
	}
	return slog.Default()
}

func (t *Transport) pollInterval() time.Duration {
	if t.PollInterval > 0 {
		return t.PollInterval
	}
	return defaultPollInterval
}

// RoundTrip sends the request with the current bearer token and applies the
// 401/403 interception rules.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	out := req.Clone(req.Context())
	if tok := t.Session.AccessToken(); tok != "" {
		out.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := t.base().RoundTrip(out)
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return t.handleUnauthorized(req, resp)
	case resp.StatusCode == http.StatusForbidden:
		return t.enrichForbidden(req, resp), nil
	case resp.StatusCode >= http.StatusBadRequest:
		return t.ensureTrace(resp), nil
	}
	return resp, nil
}

// handleUnauthorized coordinates refresh-and-retry. The original 401 response
// is kept intact and propagated whenever the retry cannot happen.
func (t *Transport) handleUnauthorized(req *http.Request, resp *http.Response) (*http.Response, error) {
	ctx := req.Context()
	if retried(ctx) {
		return t.ensureTrace(resp), nil
	}

	if t.Session.Refreshing() {
		// Someone else's refresh is in flight: suspend until it settles,
		// then ride on its outcome.
		if !t.waitForRefresh(ctx) {
			return t.ensureTrace(resp), nil
		}
		if t.Session.AccessToken() == "" {
			// The refresh we waited on failed; the coordinator has already
			// torn the session down.
			return t.ensureTrace(resp), nil
		}
	} else {
		if _, err := t.Auth.Refresh(ctx); err != nil {
			t.logger().Warn("token refresh after 401 failed", "error", err)
			t.Auth.Logout(ctx)
			return t.ensureTrace(resp), nil
		}
	}

	retryReq, ok := cloneForRetry(req)
	if !ok {
		// Body cannot be replayed; surface the original error.
		return t.ensureTrace(resp), nil
	}

	closeBody(resp)
	return t.RoundTrip(retryReq)
}

// waitForRefresh polls until the in-flight refresh settles. Returns false
// when the request's context expires first.
func (t *Transport) waitForRefresh(ctx context.Context) bool {
	ticker := time.NewTicker(t.pollInterval())
	defer ticker.Stop()

	for t.Session.Refreshing() {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
	return true
}

// cloneForRetry produces a one-shot retry request marked against further
// retries. ok is false when the request carries a body that cannot be
// re-read.
func cloneForRetry(req *http.Request) (*http.Request, bool) {
	out := req.Clone(context.WithValue(req.Context(), retriedKey, true))
	if req.Body == nil || req.Body == http.NoBody {
		return out, true
	}
	if req.GetBody == nil {
		return nil, false
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, false
	}
	out.Body = body
	return out, true
}
