package interfaces

import (
	"context"

	"github.com/ternarybob/promolink/internal/models"
)

// AffiliateConverter rewrites a product URL into an affiliate-tagged URL.
// Convert never fails: on any error it returns a documented fallback URL.
type AffiliateConverter interface {
	Merchant() models.Merchant
	Convert(ctx context.Context, rawURL string) string
}

// MetadataFetcher returns the title and image of a product page.
// A nil result or empty title means nothing usable was found.
type MetadataFetcher interface {
	Fetch(ctx context.Context, rawURL string) *models.ProductMetadata
}

// Rewriter produces the publishable copy for an offer, keeping [LINK_n] tokens in place
type Rewriter interface {
	Rewrite(ctx context.Context, text string) (string, error)
}

// Publisher sends an offer to a destination channel and returns the post URL
type Publisher interface {
	Name() string
	Publish(ctx context.Context, offer models.QueuedOffer) (string, error)
}

// Notifier delivers operator messages (errors, approval previews)
type Notifier interface {
	Notify(ctx context.Context, text string) error
	SendPreview(ctx context.Context, offerID string, offer models.QueuedOffer) error
}

// LinkConverter dispatches a URL to the matching AffiliateConverter
type LinkConverter interface {
	Convert(ctx context.Context, rawURL string) string
}

// URLExpander follows redirects of short links. On failure it returns the input.
type URLExpander interface {
	Expand(ctx context.Context, rawURL string) string
}

// LinkProcessor replaces the links of a message with [LINK_n] placeholders
type LinkProcessor interface {
	ProcessAndReplace(ctx context.Context, text string, extraLink string) (string, models.PlaceholderMap)
}

// ProductScraper reads product metadata and can save the product image locally
type ProductScraper interface {
	MetadataFetcher
	FetchWithImage(ctx context.Context, rawURL, dir string) *models.ProductMetadata
}
