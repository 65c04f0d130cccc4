package telegram

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/m3rciful/sessionkeeper/core/telegram/netutil"
)

const (
	defaultDialTimeout       = 5 * time.Second
	defaultTLSHandshake      = 5 * time.Second
	defaultIdleConnTimeout   = 30 * time.Second
	defaultKeepAliveInterval = 30 * time.Second
	defaultRetryAttempts     = 3
	defaultRetryBackoff      = 2 * time.Second
	// Long polling holds getUpdates open for the poll timeout, so the client
	// timeout must exceed it.
	pollHeadroom = 15 * time.Second
)

// BuildHTTPClient returns an HTTP client tuned for Bot API calls with the
// given long-poll timeout.
func BuildHTTPClient(pollTimeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: defaultDialTimeout, KeepAlive: defaultKeepAliveInterval}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       defaultIdleConnTimeout,
		TLSHandshakeTimeout:   defaultTLSHandshake,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Timeout: pollTimeout + pollHeadroom,
		Transport: &retryTransport{
			base:       transport,
			maxRetries: defaultRetryAttempts,
			backoff:    defaultRetryBackoff,
		},
	}
}

// retryTransport replays requests that failed before reaching Telegram.
// Requests with a body that cannot be re-read are sent once.
type retryTransport struct {
	base       http.RoundTripper
	maxRetries int
	backoff    time.Duration
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}

	resp, err := base.RoundTrip(req)
	for attempt := 1; err != nil && attempt <= t.maxRetries; attempt++ {
		if !netutil.ShouldRetry(err) {
			return nil, err
		}
		next, ok := replay(req)
		if !ok {
			return nil, err
		}
		if werr := sleepCtx(req.Context(), t.backoff*time.Duration(attempt)); werr != nil {
			return nil, werr
		}
		resp, err = base.RoundTrip(next)
	}
	return resp, err
}

// replay clones req with a fresh body.
func replay(req *http.Request) (*http.Request, bool) {
	if req.Body == nil || req.Body == http.NoBody {
		return req.Clone(req.Context()), true
	}
	if req.GetBody == nil {
		return nil, false
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, false
	}
	next := req.Clone(req.Context())
	next.Body = body
	return next, true
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
