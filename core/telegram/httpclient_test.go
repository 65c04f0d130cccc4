package telegram

import (
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"
)

type scriptedTransport struct {
	errs  []error
	calls int
}

func (s *scriptedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	s.calls++
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader("{}")), Request: req}, nil
}

func dialErr() error { return &net.OpError{Op: "dial", Err: errors.New("connection refused")} }

func TestRetryTransportRetriesDialErrors(t *testing.T) {
	base := &scriptedTransport{errs: []error{dialErr(), dialErr()}}
	rt := &retryTransport{base: base, maxRetries: 3, backoff: time.Millisecond}

	req, _ := http.NewRequest(http.MethodPost, "https://api.telegram.org/botX/getMe", strings.NewReader("a=b"))
	resp, err := rt.RoundTrip(req)
	if err != nil {
		t.Fatalf("round trip: %v", err)
	}
	resp.Body.Close()
	if base.calls != 3 {
		t.Fatalf("calls = %d, want 3", base.calls)
	}
}

func TestRetryTransportStopsOnPermanentError(t *testing.T) {
	base := &scriptedTransport{errs: []error{errors.New("tls: bad certificate")}}
	rt := &retryTransport{base: base, maxRetries: 3, backoff: time.Millisecond}

	req, _ := http.NewRequest(http.MethodGet, "https://api.telegram.org/botX/getMe", nil)
	if _, err := rt.RoundTrip(req); err == nil {
		t.Fatalf("expected error")
	}
	if base.calls != 1 {
		t.Fatalf("calls = %d, want 1", base.calls)
	}
}

func TestBuildHTTPClientTimeout(t *testing.T) {
	c := BuildHTTPClient(10 * time.Second)
	if c.Timeout != 10*time.Second+pollHeadroom {
		t.Fatalf("timeout = %v", c.Timeout)
	}
	if _, ok := c.Transport.(*retryTransport); !ok {
		t.Fatalf("transport = %T, want *retryTransport", c.Transport)
	}
}
