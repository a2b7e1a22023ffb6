package webhook

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPSender_Send(t *testing.T) {
	ctx := context.Background()

	t.Run("success - posts body and headers", func(t *testing.T) {
		var gotMethod, gotBody, gotHeader string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotMethod = r.Method
			b, _ := io.ReadAll(r.Body)
			gotBody = string(b)
			gotHeader = r.Header.Get(HeaderEventType)
			w.Header().Set("X-RateLimit-Remaining", "9")
			w.WriteHeader(http.StatusAccepted)
			_, _ = w.Write([]byte(`{"received":true}`))
		}))
		defer srv.Close()

		resp, err := NewHTTPSender(time.Second).Send(ctx, Request{
			URL:     srv.URL,
			Body:    []byte(`{"id":1}`),
			Headers: map[string]string{HeaderEventType: "order.created"},
		})

		require.NoError(t, err)
		assert.True(t, resp.Success())
		assert.Equal(t, http.StatusAccepted, resp.StatusCode)
		assert.Equal(t, `{"received":true}`, string(resp.Body))
		assert.Equal(t, "9", resp.Header.Get("X-RateLimit-Remaining"))
		assert.Equal(t, http.MethodPost, gotMethod)
		assert.Equal(t, `{"id":1}`, gotBody)
		assert.Equal(t, "order.created", gotHeader)
	})

	t.Run("success - error status is not a transport error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(strings.Repeat("x", maxResponseBody*2)))
		}))
		defer srv.Close()

		resp, err := NewHTTPSender(time.Second).Send(ctx, Request{URL: srv.URL, Body: []byte(`{}`)})

		require.NoError(t, err)
		assert.False(t, resp.Success())
		assert.Len(t, resp.Body, maxResponseBody)
	})

	t.Run("error - client timeout", func(t *testing.T) {
		release := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			<-release
		}))
		defer srv.Close()
		defer close(release)

		_, err := NewHTTPSender(50*time.Millisecond).Send(ctx, Request{URL: srv.URL, Body: []byte(`{}`)})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "sending request")
	})

	t.Run("error - unreachable host", func(t *testing.T) {
		_, err := NewHTTPSender(time.Second).Send(ctx, Request{URL: "http://127.0.0.1:1", Body: []byte(`{}`)})

		require.Error(t, err)
	})
}

func TestRetryAfter(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		value  string
		want   time.Duration
		wantOK bool
	}{
		{"seconds", "120", 2 * time.Minute, true},
		{"http date", now.Add(90 * time.Second).Format(http.TimeFormat), 90 * time.Second, true},
		{"date in the past", now.Add(-time.Minute).Format(http.TimeFormat), 0, true},
		{"missing", "", 0, false},
		{"garbage", "soon", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			if tt.value != "" {
				h.Set("Retry-After", tt.value)
			}

			got, ok := retryAfter(h, now)

			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRateLimitHeaders(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("success - reset as delta seconds", func(t *testing.T) {
		h := http.Header{}
		h.Set("X-RateLimit-Remaining", "3")
		h.Set("X-RateLimit-Reset", "45")

		remaining, reset, ok := rateLimitHeaders(h, now)

		require.True(t, ok)
		assert.Equal(t, 3, remaining)
		assert.Equal(t, now.Add(45*time.Second), reset)
	})

	t.Run("success - reset as unix epoch", func(t *testing.T) {
		h := http.Header{}
		h.Set("X-RateLimit-Remaining", "0")
		h.Set("X-RateLimit-Reset", "1740831000")

		_, reset, ok := rateLimitHeaders(h, now)

		require.True(t, ok)
		assert.Equal(t, int64(1740831000), reset.Unix())
	})

	t.Run("success - reset defaults to a minute", func(t *testing.T) {
		h := http.Header{}
		h.Set("X-RateLimit-Remaining", "10")

		_, reset, ok := rateLimitHeaders(h, now)

		require.True(t, ok)
		assert.Equal(t, now.Add(time.Minute), reset)
	})

	t.Run("error - absent or malformed remaining", func(t *testing.T) {
		_, _, ok := rateLimitHeaders(http.Header{}, now)
		assert.False(t, ok)

		h := http.Header{}
		h.Set("X-RateLimit-Remaining", "many")
		_, _, ok = rateLimitHeaders(h, now)
		assert.False(t, ok)
	})
}
