package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/promolink/internal/common"
)

// maxBodyBytes bounds how much of a response body is kept in memory
const maxBodyBytes = 8 << 20

// Request describes a single fetch
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte
	// FollowRedirects false stops at the first 3xx and returns it
	FollowRedirects bool
	// Timeout overrides the fetcher default when > 0
	Timeout time.Duration
	// NoCookieJar sends the request without the session cookies collected by
	// earlier fetches. Only the headers of the request carry cookies.
	NoCookieJar bool
}

// Response is a fully read HTTP response
type Response struct {
	StatusCode int
	Body       []byte
	FinalURL   string
	Header     http.Header
}

// Fetcher performs HTTP requests with a browser User-Agent.
// Every outbound call of the link pipeline goes through it.
type Fetcher struct {
	client     *http.Client
	noRedirect *http.Client
	// jar-less clients for requests that must not carry session cookies
	bare           *http.Client
	bareNoRedirect *http.Client
	userAgent      string
	timeout        time.Duration
	logger         arbor.ILogger
}

// FetcherOption configures a Fetcher
type FetcherOption func(*Fetcher)

// WithHTTPClient replaces the client used for redirect-following requests
func WithHTTPClient(client *http.Client) FetcherOption {
	return func(f *Fetcher) {
		f.client = client
	}
}

// WithUserAgent sets the default User-Agent header
func WithUserAgent(userAgent string) FetcherOption {
	return func(f *Fetcher) {
		if userAgent != "" {
			f.userAgent = userAgent
		}
	}
}

// WithTimeout sets the default per-request timeout
func WithTimeout(timeout time.Duration) FetcherOption {
	return func(f *Fetcher) {
		if timeout > 0 {
			f.timeout = timeout
		}
	}
}

// NewFetcher creates a Fetcher
func NewFetcher(logger arbor.ILogger, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		userAgent: common.DefaultUserAgent,
		timeout:   30 * time.Second,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.client == nil {
		f.client = NewSessionHTTPClient(0)
	}
	f.noRedirect = &http.Client{
		Transport: f.client.Transport,
		Jar:       f.client.Jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	f.bare = NewDefaultHTTPClient(0)
	f.bare.Transport = f.client.Transport
	f.bareNoRedirect = NewNoRedirectHTTPClient(0)
	f.bareNoRedirect.Transport = f.client.Transport
	return f
}

// Fetch executes the request and reads the body. Transport failures come back
// classified; non-2xx statuses are returned in the Response, not as errors.
func (f *Fetcher) Fetch(ctx context.Context, req Request) (*Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	timeout := f.timeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return nil, &PermanentError{Endpoint: req.URL, Message: fmt.Sprintf("invalid request: %v", err)}
	}
	httpReq.Header.Set("User-Agent", f.userAgent)
	httpReq.Header.Set("Accept-Language", "pt-BR,pt;q=0.9,en;q=0.8")
	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}

	client := f.clientFor(req)

	resp, err := client.Do(httpReq)
	if err != nil {
		f.logger.Debug().Str("url", req.URL).Err(err).Msg("Fetch failed")
		return nil, Classify(req.URL, 0, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, Classify(req.URL, 0, err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Body:       data,
		FinalURL:   resp.Request.URL.String(),
		Header:     resp.Header,
	}, nil
}

func (f *Fetcher) clientFor(req Request) *http.Client {
	switch {
	case req.NoCookieJar && req.FollowRedirects:
		return f.bare
	case req.NoCookieJar:
		return f.bareNoRedirect
	case req.FollowRedirects:
		return f.client
	default:
		return f.noRedirect
	}
}

// Get is a shorthand for a redirect-following GET
func (f *Fetcher) Get(ctx context.Context, url string, headers map[string]string) (*Response, error) {
	return f.Fetch(ctx, Request{URL: url, Headers: headers, FollowRedirects: true})
}
