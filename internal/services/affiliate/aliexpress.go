package affiliate

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/promolink/internal/common"
	"github.com/ternarybob/promolink/internal/httpclient"
	"github.com/ternarybob/promolink/internal/metrics"
	"github.com/ternarybob/promolink/internal/models"
	"golang.org/x/time/rate"
)

const aliExpressLinkMethod = "aliexpress.affiliate.link.generate"

var (
	aliProductIDsPattern = regexp.MustCompile(`productIds=(\d+)`)
	aliItemPattern       = regexp.MustCompile(`item/(\d+)\.html`)
)

// AliExpressConverter generates promotion links through the AliExpress open
// platform and falls back to the public deep-link endpoint
type AliExpressConverter struct {
	fetcher *httpclient.Fetcher
	secrets *common.SecretResolver
	config  common.AliExpressConfig
	limiter *rate.Limiter
	now     func() time.Time
	metrics *metrics.Metrics
	logger  arbor.ILogger
}

// NewAliExpressConverter creates the AliExpress converter
func NewAliExpressConverter(
	config common.AliExpressConfig,
	fetcher *httpclient.Fetcher,
	secrets *common.SecretResolver,
	m *metrics.Metrics,
	logger arbor.ILogger,
) *AliExpressConverter {
	limit := config.RateLimit
	if limit <= 0 {
		limit = 5
	}
	return &AliExpressConverter{
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
func (c *AliExpressConverter) Merchant() models.Merchant {
	return models.MerchantAliExpress
}

// NormalizeAliExpressURL reduces URLs that embed a numeric product id in an
// unrelated shape (coin pages, campaign landing pages) to item/<id>.html
func NormalizeAliExpressURL(rawURL string) string {
	if m := aliProductIDsPattern.FindStringSubmatch(rawURL); m != nil {
		return fmt.Sprintf("https://pt.aliexpress.com/item/%s.html", m[1])
	}
	if m := aliItemPattern.FindStringSubmatch(rawURL); m != nil {
		return fmt.Sprintf("https://pt.aliexpress.com/item/%s.html", m[1])
	}
	return rawURL
}

// Convert implements interfaces.AffiliateConverter
func (c *AliExpressConverter) Convert(ctx context.Context, rawURL string) string {
	cleanURL := CleanTrackingParams(NormalizeAliExpressURL(rawURL))

	appSecret := c.secrets.Resolve(ctx, common.SecretAliExpressAppSecret, c.config.AppSecret)
	if c.config.AppKey == "" || appSecret == "" || c.config.TrackingID == "" {
		c.logger.Warn().Msg("AliExpress API credentials not configured, using deep-link fallback")
		c.metrics.RecordFallback(c.Merchant().String())
		return c.deepLink(cleanURL)
	}

	link, err := c.generateLink(ctx, cleanURL, appSecret)
	if err != nil {
		c.logger.Warn().Str("url", cleanURL).Err(err).Msg("AliExpress link API failed, using deep-link fallback")
		c.metrics.RecordFallback(c.Merchant().String())
		return c.deepLink(cleanURL)
	}
	return link
}

// deepLink wraps cleanURL in the public tracking redirect; without a tracking
// id there is nothing to wrap it with
func (c *AliExpressConverter) deepLink(cleanURL string) string {
	if c.config.TrackingID == "" {
		return cleanURL
	}
	return fmt.Sprintf("https://s.click.aliexpress.com/deep_link.htm?aff_short_key=%s&dl_target_url=%s",
		url.QueryEscape(c.config.TrackingID), url.QueryEscape(cleanURL))
}

// SignTopRequest computes the md5 signature of the open platform: the secret,
// then every key+value in key order, then the secret again, upper-case hex
func SignTopRequest(params map[string]string, secret string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(secret)
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(params[k])
	}
	b.WriteString(secret)

	sum := md5.Sum([]byte(b.String()))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

type aliLinkResponse struct {
	Response struct {
		RespResult struct {
			RespCode int    `json:"resp_code"`
			RespMsg  string `json:"resp_msg"`
			Result   struct {
				PromotionLinks struct {
					PromotionLink []struct {
						PromotionLink string `json:"promotion_link"`
						SourceValue   string `json:"source_value"`
					} `json:"promotion_link"`
				} `json:"promotion_links"`
			} `json:"result"`
		} `json:"resp_result"`
	} `json:"aliexpress_affiliate_link_generate_response"`
}

func (c *AliExpressConverter) generateLink(ctx context.Context, cleanURL, appSecret string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	params := map[string]string{
		"method":              aliExpressLinkMethod,
		"app_key":             c.config.AppKey,
		"sign_method":         "md5",
		"timestamp":           c.now().Format("2006-01-02 15:04:05"),
		"format":              "json",
		"v":                   "2.0",
		"promotion_link_type": "0",
		"source_values":       cleanURL,
		"tracking_id":         c.config.TrackingID,
	}
	params["sign"] = SignTopRequest(params, appSecret)

	form := url.Values{}
	for k, v := range params {
		form.Set(k, v)
	}

	resp, err := c.fetcher.Fetch(ctx, httpclient.Request{
		Method:          http.MethodPost,
		URL:             c.config.APIURL,
		Body:            []byte(form.Encode()),
		Headers:         map[string]string{"Content-Type": "application/x-www-form-urlencoded"},
		Timeout:         c.config.Timeout.Std(),
		FollowRedirects: true,
	})
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", httpclient.ClassifyResponse(c.config.APIURL, resp, nil)
	}

	var parsed aliLinkResponse
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return "", &httpclient.PermanentError{Endpoint: c.config.APIURL, Message: fmt.Sprintf("invalid response: %v", err)}
	}

	result := parsed.Response.RespResult
	if result.RespCode != http.StatusOK {
		return "", &httpclient.PermanentError{Endpoint: c.config.APIURL, Message: result.RespMsg}
	}
	links := result.Result.PromotionLinks.PromotionLink
	if len(links) == 0 || links[0].PromotionLink == "" {
		return "", &httpclient.PermanentError{Endpoint: c.config.APIURL, Message: "no promotion link returned"}
	}
	return links[0].PromotionLink, nil
}
