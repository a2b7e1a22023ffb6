package webhook

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// maxResponseBody bounds how much of a response body is kept for diagnostics
const maxResponseBody = 4096

// Request is one outbound POST
type Request struct {
	URL     string
	Body    []byte
	Headers map[string]string
}

// Response is what an endpoint answered
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Success reports whether the endpoint accepted the delivery
func (r Response) Success() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Sender performs the network call of an attempt
type Sender interface {
	Send(ctx context.Context, req Request) (Response, error)
}

// HTTPSender posts requests with a plain http.Client
type HTTPSender struct {
	client *http.Client
}

// NewHTTPSender creates a sender whose client gives up after timeout
func NewHTTPSender(timeout time.Duration) *HTTPSender {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPSender{
		client: &http.Client{Timeout: timeout},
	}
}

// Send posts req and returns the response. Non-2xx responses are not errors.
func (s *HTTPSender) Send(ctx context.Context, req Request) (Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		return Response{}, fmt.Errorf("creating request: %w", err)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	// drain so the connection can be reused
	_, _ = io.Copy(io.Discard, resp.Body)

	return Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}

// retryAfter parses a Retry-After header in seconds or HTTP date form
func retryAfter(h http.Header, now time.Time) (time.Duration, bool) {
	v := h.Get("Retry-After")
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second, true
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := at.Sub(now); d > 0 {
			return d, true
		}
		return 0, true
	}
	return 0, false
}

// rateLimitHeaders parses X-RateLimit-Remaining and X-RateLimit-Reset.
// Reset is read as unix seconds, or as seconds from now when small.
func rateLimitHeaders(h http.Header, now time.Time) (int, time.Time, bool) {
	rem := h.Get("X-RateLimit-Remaining")
	if rem == "" {
		return 0, time.Time{}, false
	}
	remaining, err := strconv.Atoi(rem)
	if err != nil {
		return 0, time.Time{}, false
	}

	reset := now.Add(time.Minute)
	if v := h.Get("X-RateLimit-Reset"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			// values below a year of seconds are deltas, larger ones are epochs
			if n < 365*24*3600 {
				reset = now.Add(time.Duration(n) * time.Second)
			} else {
				reset = time.Unix(n, 0)
			}
		}
	}
	return remaining, reset, true
}
