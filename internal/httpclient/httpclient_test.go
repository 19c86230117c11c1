package httpclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		err        error
		check      func(t *testing.T, err error)
	}{
		{
			name:       "success",
			statusCode: http.StatusOK,
			check:      func(t *testing.T, err error) { assert.NoError(t, err) },
		},
		{
			name:       "too many requests",
			statusCode: http.StatusTooManyRequests,
			check: func(t *testing.T, err error) {
				var target *RateLimitedError
				assert.True(t, errors.As(err, &target))
			},
		},
		{
			name:       "server error",
			statusCode: http.StatusBadGateway,
			check: func(t *testing.T, err error) {
				var target *TransientNetworkError
				assert.True(t, errors.As(err, &target))
			},
		},
		{
			name:       "request timeout",
			statusCode: http.StatusRequestTimeout,
			check: func(t *testing.T, err error) {
				var target *TransientNetworkError
				assert.True(t, errors.As(err, &target))
			},
		},
		{
			name:       "forbidden",
			statusCode: http.StatusForbidden,
			check: func(t *testing.T, err error) {
				var target *PermanentError
				require.True(t, errors.As(err, &target))
				assert.Equal(t, http.StatusForbidden, target.StatusCode)
			},
		},
		{
			name: "deadline exceeded",
			err:  context.DeadlineExceeded,
			check: func(t *testing.T, err error) {
				var target *TransientNetworkError
				assert.True(t, errors.As(err, &target))
			},
		},
		{
			name: "already typed",
			err:  &RateLimitedError{RetryAfter: time.Second},
			check: func(t *testing.T, err error) {
				var target *RateLimitedError
				require.True(t, errors.As(err, &target))
				assert.Equal(t, time.Second, target.RetryAfter)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, Classify("https://api.example.com", tt.statusCode, tt.err))
		})
	}
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(&RateLimitedError{}))
	assert.True(t, IsRetryable(&TransientNetworkError{Err: errors.New("reset")}))
	assert.False(t, IsRetryable(&PermanentError{StatusCode: 400}))
	assert.False(t, IsRetryable(errors.New("plain")))
	assert.False(t, IsRetryable(nil))
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, 5*time.Second, ParseRetryAfter("5"))
	assert.Equal(t, time.Duration(0), ParseRetryAfter(""))
	assert.Equal(t, time.Duration(0), ParseRetryAfter("soon"))
}

func fastPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:       3,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
		BackoffMultiplier: 2,
		MaxRetryAfter:     5 * time.Millisecond,
	}
}

func TestRetryPolicy_Do(t *testing.T) {
	logger := arbor.NewLogger()

	t.Run("retries transient errors until success", func(t *testing.T) {
		calls := 0
		err := fastPolicy().Do(context.Background(), logger, func() error {
			calls++
			if calls < 3 {
				return &TransientNetworkError{Err: errors.New("reset")}
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("stops on permanent error", func(t *testing.T) {
		calls := 0
		err := fastPolicy().Do(context.Background(), logger, func() error {
			calls++
			return &PermanentError{StatusCode: 401}
		})
		var permanent *PermanentError
		assert.True(t, errors.As(err, &permanent))
		assert.Equal(t, 1, calls)
	})

	t.Run("honours retry after", func(t *testing.T) {
		calls := 0
		err := fastPolicy().Do(context.Background(), logger, func() error {
			calls++
			return &RateLimitedError{RetryAfter: time.Hour}
		})
		var rateLimited *RateLimitedError
		assert.True(t, errors.As(err, &rateLimited))
		assert.Equal(t, 3, calls)
	})

	t.Run("context cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		policy := fastPolicy()
		policy.InitialBackoff = time.Hour
		policy.MaxBackoff = time.Hour

		err := policy.Do(ctx, logger, func() error {
			cancel()
			return &TransientNetworkError{Err: errors.New("timeout")}
		})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestFetcher_Fetch(t *testing.T) {
	var gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/short":
			http.Redirect(w, r, "/final?x=1", http.StatusFound)
		case "/final":
			gotUA = r.Header.Get("User-Agent")
			w.Write([]byte("landing"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	fetcher := NewFetcher(arbor.NewLogger(), WithUserAgent("promolink-test"), WithTimeout(5*time.Second))
	ctx := context.Background()

	t.Run("follows redirects", func(t *testing.T) {
		resp, err := fetcher.Get(ctx, server.URL+"/short", nil)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, server.URL+"/final?x=1", resp.FinalURL)
		assert.Equal(t, "landing", string(resp.Body))
		assert.Equal(t, "promolink-test", gotUA)
	})

	t.Run("stops at redirect when asked", func(t *testing.T) {
		resp, err := fetcher.Fetch(ctx, Request{URL: server.URL + "/short"})
		require.NoError(t, err)
		assert.Equal(t, http.StatusFound, resp.StatusCode)
		assert.Equal(t, "/final?x=1", resp.Header.Get("Location"))
	})

	t.Run("non-2xx is not an error", func(t *testing.T) {
		resp, err := fetcher.Get(ctx, server.URL+"/missing", nil)
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("connection failure is transient", func(t *testing.T) {
		closed := httptest.NewServer(http.NotFoundHandler())
		addr := closed.URL
		closed.Close()

		_, err := fetcher.Get(ctx, addr, nil)
		var transient *TransientNetworkError
		assert.True(t, errors.As(err, &transient))
	})
}

func TestFetcher_NoCookieJar(t *testing.T) {
	var gotCookie string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/page":
			http.SetCookie(w, &http.Cookie{Name: "_csrf", Value: "page-token", Path: "/"})
		case "/api":
			gotCookie = r.Header.Get("Cookie")
		case "/moved":
			http.Redirect(w, r, "/api", http.StatusFound)
		}
	}))
	defer server.Close()

	fetcher := NewFetcher(arbor.NewLogger(), WithTimeout(5*time.Second))
	ctx := context.Background()

	_, err := fetcher.Get(ctx, server.URL+"/page", nil)
	require.NoError(t, err)

	_, err = fetcher.Get(ctx, server.URL+"/api", nil)
	require.NoError(t, err)
	assert.Equal(t, "_csrf=page-token", gotCookie, "session jar replays cookies")

	resp, err := fetcher.Fetch(ctx, Request{
		Method:      http.MethodPost,
		URL:         server.URL + "/api",
		Headers:     map[string]string{"Cookie": "ssid=configured"},
		NoCookieJar: true,
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ssid=configured", gotCookie)

	resp, err = fetcher.Fetch(ctx, Request{URL: server.URL + "/moved", NoCookieJar: true})
	require.NoError(t, err)
	assert.Equal(t, http.StatusFound, resp.StatusCode)
}
