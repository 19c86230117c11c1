package affiliate

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/promolink/internal/metrics"
	"github.com/ternarybob/promolink/internal/models"
)

var asinPattern = regexp.MustCompile(`(?i)/(?:dp|gp/product|gp/aw/d|aw/d|exec/obidos/asin|exec/obidos/tg/detail/-|o/asin)/([a-z0-9]{10})(?:[/?#]|$)`)

// amazonParams are Amazon-network parameters removed by the tag-injection fallback
var amazonParams = map[string]struct{}{
	"tag": {}, "linkcode": {}, "linkid": {}, "ref": {}, "ref_": {}, "language": {}, "mcid": {},
	"hvadid": {}, "hvpos": {}, "hvnetw": {}, "hvrand": {}, "hvpone": {}, "hvptwo": {}, "hvqmt": {},
	"hvdev": {}, "hvdvcmdl": {}, "hvlocint": {}, "hvlocphy": {}, "hvtargid": {}, "camp": {}, "creative": {},
}

// AmazonConverter rewrites Amazon links to /dp/<ASIN>?tag=<tag>
type AmazonConverter struct {
	tag     string
	metrics *metrics.Metrics
	logger  arbor.ILogger
}

// NewAmazonConverter creates the Amazon converter
func NewAmazonConverter(tag string, m *metrics.Metrics, logger arbor.ILogger) *AmazonConverter {
	if tag == "" {
		logger.Warn().Msg("Amazon affiliate tag not configured, links will only be cleaned")
	}
	return &AmazonConverter{tag: tag, metrics: m, logger: logger}
}

// Merchant implements interfaces.AffiliateConverter
func (c *AmazonConverter) Merchant() models.Merchant {
	return models.MerchantAmazon
}

// ExtractASIN returns the upper-cased ASIN of an Amazon product URL, or ""
func ExtractASIN(rawURL string) string {
	m := asinPattern.FindStringSubmatch(rawURL)
	if m == nil {
		return ""
	}
	return strings.ToUpper(m[1])
}

// Convert implements interfaces.AffiliateConverter
func (c *AmazonConverter) Convert(ctx context.Context, rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return CleanTrackingParams(rawURL)
	}

	if asin := ExtractASIN(rawURL); asin != "" {
		canonical := fmt.Sprintf("https://%s/dp/%s", u.Host, asin)
		if c.tag == "" {
			return canonical
		}
		return canonical + "?tag=" + url.QueryEscape(c.tag)
	}

	c.logger.Debug().Str("url", rawURL).Msg("No ASIN found, injecting tag into original URL")
	c.metrics.RecordFallback(c.Merchant().String())

	cleaned := removeParams(CleanTrackingParams(rawURL), func(key string) bool {
		_, ok := amazonParams[strings.ToLower(key)]
		return ok
	})
	if c.tag == "" {
		return cleaned
	}
	return setParam(cleaned, "tag", c.tag)
}
