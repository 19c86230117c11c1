package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// RateLimitedError means the remote side asked us to slow down
type RateLimitedError struct {
	RetryAfter time.Duration
	Endpoint   string
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited by %s (retry after %s)", e.Endpoint, e.RetryAfter)
}

// TransientNetworkError wraps failures that may succeed on a later attempt:
// timeouts, resets, 408 and 5xx responses
type TransientNetworkError struct {
	Endpoint string
	Err      error
}

func (e *TransientNetworkError) Error() string {
	return fmt.Sprintf("transient failure calling %s: %v", e.Endpoint, e.Err)
}

func (e *TransientNetworkError) Unwrap() error {
	return e.Err
}

// PermanentError is a failure that retrying will not fix
type PermanentError struct {
	StatusCode int
	Endpoint   string
	Message    string
}

func (e *PermanentError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s returned %d: %s", e.Endpoint, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Endpoint, e.Message)
}

// Classify maps the outcome of one HTTP exchange to a typed error.
// It returns nil for 2xx responses without a transport error.
func Classify(endpoint string, statusCode int, err error) error {
	if err != nil {
		var rateLimited *RateLimitedError
		var transient *TransientNetworkError
		var permanent *PermanentError
		if errors.As(err, &rateLimited) || errors.As(err, &transient) || errors.As(err, &permanent) {
			return err
		}
		if errors.Is(err, context.Canceled) {
			return err
		}
		if isNetworkError(err) {
			return &TransientNetworkError{Endpoint: endpoint, Err: err}
		}
		return &PermanentError{StatusCode: statusCode, Endpoint: endpoint, Message: err.Error()}
	}

	switch {
	case statusCode >= 200 && statusCode < 300:
		return nil
	case statusCode == http.StatusTooManyRequests:
		return &RateLimitedError{Endpoint: endpoint}
	case statusCode == http.StatusRequestTimeout || statusCode >= 500:
		return &TransientNetworkError{Endpoint: endpoint, Err: fmt.Errorf("status %d", statusCode)}
	default:
		return &PermanentError{StatusCode: statusCode, Endpoint: endpoint, Message: http.StatusText(statusCode)}
	}
}

// ClassifyResponse is Classify with the Retry-After header honoured for 429s
func ClassifyResponse(endpoint string, resp *Response, err error) error {
	if resp == nil {
		return Classify(endpoint, 0, err)
	}
	classified := Classify(endpoint, resp.StatusCode, err)
	var rateLimited *RateLimitedError
	if errors.As(classified, &rateLimited) && rateLimited.RetryAfter == 0 {
		rateLimited.RetryAfter = ParseRetryAfter(resp.Header.Get("Retry-After"))
	}
	return classified
}

// ParseRetryAfter reads a Retry-After header given in seconds or as an HTTP date
func ParseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if when, err := http.ParseTime(value); err == nil {
		if d := time.Until(when); d > 0 {
			return d
		}
	}
	return 0
}

// IsRetryable reports whether err is worth another attempt
func IsRetryable(err error) bool {
	var rateLimited *RateLimitedError
	var transient *TransientNetworkError
	return errors.As(err, &rateLimited) || errors.As(err, &transient)
}

func isNetworkError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}
	// url.Error satisfies net.Error itself, so look at what it wraps
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		err = urlErr.Err
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
