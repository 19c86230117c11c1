package httpclient

import (
	"net/http"
	"net/http/cookiejar"
	"time"
)

// NewDefaultHTTPClient creates a simple HTTP client with a timeout
func NewDefaultHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
	}
}

// NewNoRedirectHTTPClient creates a client that stops at the first redirect.
// The last response is returned as-is so callers can inspect the Location header.
func NewNoRedirectHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// NewSessionHTTPClient creates a client with a cookie jar, for storefronts that
// set session cookies on the first request
func NewSessionHTTPClient(timeout time.Duration) *http.Client {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return NewDefaultHTTPClient(timeout)
	}
	return &http.Client{
		Jar:     jar,
		Timeout: timeout,
	}
}
