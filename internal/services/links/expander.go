package links

import (
	"context"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/promolink/internal/httpclient"
)

// Expander resolves short links by following redirects
type Expander struct {
	fetcher *httpclient.Fetcher
	timeout time.Duration
	logger  arbor.ILogger
}

// NewExpander creates an Expander; timeout bounds each expansion
func NewExpander(fetcher *httpclient.Fetcher, timeout time.Duration, logger arbor.ILogger) *Expander {
	return &Expander{
		fetcher: fetcher,
		timeout: timeout,
		logger:  logger,
	}
}

// Expand returns the final URL after redirects, or rawURL when the request fails
func (e *Expander) Expand(ctx context.Context, rawURL string) string {
	resp, err := e.fetcher.Fetch(ctx, httpclient.Request{
		URL:             rawURL,
		FollowRedirects: true,
		Timeout:         e.timeout,
	})
	if err != nil {
		e.logger.Debug().Str("url", rawURL).Err(err).Msg("Expansion failed, keeping original URL")
		return rawURL
	}
	if resp.FinalURL == "" {
		return rawURL
	}
	return resp.FinalURL
}
