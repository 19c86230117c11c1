package affiliate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/promolink/internal/common"
	"github.com/ternarybob/promolink/internal/httpclient"
	"github.com/ternarybob/promolink/internal/metrics"
	"github.com/ternarybob/promolink/internal/models"
	"golang.org/x/time/rate"
)

// Shapes that carry (shop id, item id), tried in order
var shopeeIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`-i\.(\d+)\.(\d+)`),
	regexp.MustCompile(`/product/(\d+)/(\d+)`),
	regexp.MustCompile(`(?i)shopid=(\d+).*?itemid=(\d+)`),
	regexp.MustCompile(`shopee\.[a-z.]+/[^/?#]+/(\d+)/(\d+)`),
}

// itemid before shopid in the query string
var shopeeReversedQuery = regexp.MustCompile(`(?i)itemid=(\d+).*?shopid=(\d+)`)

// ShopeeIDs identifies one listing
type ShopeeIDs struct {
	ShopID string
	ItemID string
}

// ExtractShopeeIDs pulls the shop and item ids out of a Shopee URL
func ExtractShopeeIDs(rawURL string) (ShopeeIDs, bool) {
	for _, pattern := range shopeeIDPatterns {
		if m := pattern.FindStringSubmatch(rawURL); m != nil {
			return ShopeeIDs{ShopID: m[1], ItemID: m[2]}, true
		}
	}
	if m := shopeeReversedQuery.FindStringSubmatch(rawURL); m != nil {
		return ShopeeIDs{ShopID: m[2], ItemID: m[1]}, true
	}
	return ShopeeIDs{}, false
}

// ShopeeConverter creates short links through the Shopee affiliate GraphQL
// API and builds universal links when the API is unavailable
type ShopeeConverter struct {
	fetcher *httpclient.Fetcher
	secrets *common.SecretResolver
	config  common.ShopeeConfig
	limiter *rate.Limiter
	now     func() time.Time
	metrics *metrics.Metrics
	logger  arbor.ILogger
}

// NewShopeeConverter creates the Shopee converter
func NewShopeeConverter(
	config common.ShopeeConfig,
	fetcher *httpclient.Fetcher,
	secrets *common.SecretResolver,
	m *metrics.Metrics,
	logger arbor.ILogger,
) *ShopeeConverter {
	limit := config.RateLimit
	if limit <= 0 {
		limit = 2
	}
	return &ShopeeConverter{
		fetcher: fetcher,
		secrets: secrets,
		config:  config,
		limiter: rate.NewLimiter(rate.Limit(limit), limit),
		now:     time.Now,
		metrics: m,
		logger:  logger,
	}
}

// Merchant implements interfaces.AffiliateConverter
func (c *ShopeeConverter) Merchant() models.Merchant {
	return models.MerchantShopee
}

// Convert implements interfaces.AffiliateConverter
func (c *ShopeeConverter) Convert(ctx context.Context, rawURL string) string {
	cleanURL := CleanTrackingParams(rawURL)

	secret := c.secrets.Resolve(ctx, common.SecretShopeeSecret, c.config.Secret)
	if c.config.AppID != "" && secret != "" {
		shortLink, err := c.generateShortLink(ctx, cleanURL, secret)
		if err == nil {
			return shortLink
		}
		c.logger.Warn().Str("url", cleanURL).Err(err).Msg("Shopee short-link API failed, using universal link")
	} else {
		c.logger.Warn().Msg("Shopee API credentials not configured, using universal link")
	}

	c.metrics.RecordFallback(c.Merchant().String())

	ids, ok := ExtractShopeeIDs(cleanURL)
	if !ok {
		return cleanURL
	}
	return c.universalLink(ids)
}

func (c *ShopeeConverter) universalLink(ids ShopeeIDs) string {
	query := url.Values{}
	query.Set("pid", "affiliates")
	if c.config.AppID != "" {
		query.Set("af_siteid", "an_"+c.config.AppID)
	}
	if c.config.SubID != "" {
		query.Set("af_sub_siteid", c.config.SubID)
	}
	return fmt.Sprintf("https://shopee.com.br/universal-link/product/%s/%s?%s", ids.ShopID, ids.ItemID, query.Encode())
}

// ShopeeAuthorization builds the SHA256 authorization header of the open API:
// sha256(appID + timestamp + payload + secret)
func ShopeeAuthorization(appID, secret string, timestamp int64, payload []byte) string {
	ts := strconv.FormatInt(timestamp, 10)
	sum := sha256.Sum256([]byte(appID + ts + string(payload) + secret))
	return fmt.Sprintf("SHA256 Credential=%s, Timestamp=%s, Signature=%s", appID, ts, hex.EncodeToString(sum[:]))
}

type graphQLError struct {
	Message string `json:"message"`
}

// graphQL posts query and decodes the "data" member into out
func (c *ShopeeConverter) graphQL(ctx context.Context, query string, secret string, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	payload, err := json.Marshal(map[string]string{"query": query})
	if err != nil {
		return err
	}

	resp, err := c.fetcher.Fetch(ctx, httpclient.Request{
		Method: http.MethodPost,
		URL:    c.config.GraphQLURL,
		Body:   payload,
		Headers: map[string]string{
			"Content-Type":  "application/json",
			"Authorization": ShopeeAuthorization(c.config.AppID, secret, c.now().Unix(), payload),
		},
		Timeout:         c.config.Timeout.Std(),
		FollowRedirects: true,
	})
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return httpclient.ClassifyResponse(c.config.GraphQLURL, resp, nil)
	}

	var envelope struct {
		Data   json.RawMessage `json:"data"`
		Errors []graphQLError  `json:"errors"`
	}
	if err := json.Unmarshal(resp.Body, &envelope); err != nil {
		return &httpclient.PermanentError{Endpoint: c.config.GraphQLURL, Message: fmt.Sprintf("invalid response: %v", err)}
	}
	if len(envelope.Errors) > 0 {
		return &httpclient.PermanentError{Endpoint: c.config.GraphQLURL, Message: envelope.Errors[0].Message}
	}
	if len(envelope.Data) == 0 {
		return &httpclient.PermanentError{Endpoint: c.config.GraphQLURL, Message: "empty data"}
	}
	return json.Unmarshal(envelope.Data, out)
}

func (c *ShopeeConverter) generateShortLink(ctx context.Context, cleanURL, secret string) (string, error) {
	origin, _ := json.Marshal(cleanURL)
	subIDs := "[]"
	if c.config.SubID != "" {
		encoded, _ := json.Marshal([]string{c.config.SubID})
		subIDs = string(encoded)
	}
	query := fmt.Sprintf(`mutation{generateShortLink(input:{originUrl:%s,subIds:%s}){shortLink}}`, origin, subIDs)

	var data struct {
		GenerateShortLink struct {
			ShortLink string `json:"shortLink"`
		} `json:"generateShortLink"`
	}
	if err := c.graphQL(ctx, query, secret, &data); err != nil {
		return "", err
	}
	if data.GenerateShortLink.ShortLink == "" {
		return "", &httpclient.PermanentError{Endpoint: c.config.GraphQLURL, Message: "no short link returned"}
	}
	return data.GenerateShortLink.ShortLink, nil
}
