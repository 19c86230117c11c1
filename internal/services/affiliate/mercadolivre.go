package affiliate

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/promolink/internal/common"
	"github.com/ternarybob/promolink/internal/httpclient"
	"github.com/ternarybob/promolink/internal/metrics"
	"github.com/ternarybob/promolink/internal/models"
	"golang.org/x/time/rate"
)

var (
	curatedListPattern = regexp.MustCompile(`"seeMoreLink":"([^"]+lista\.mercadolivre\.com\.br\\u002F_Container_[^"]+)"`)
	seeMoreLinkPattern = regexp.MustCompile(`"seeMoreLink":"([^"]+)"`)
	featuredHrefRegexp = regexp.MustCompile(`href="([^"]*card-featured[^"]*)"`)
)

// featuredProductSelector is the "buy" anchor of the product highlighted on a showcase page
const featuredProductSelector = "a.poly-component__link--action-link"

// MercadoLivreConverter resolves social showcase pages to their featured
// product and creates an affiliate short link through the affiliate program API
type MercadoLivreConverter struct {
	fetcher *httpclient.Fetcher
	secrets *common.SecretResolver
	config  common.MercadoLivreConfig
	limiter *rate.Limiter
	metrics *metrics.Metrics
	logger  arbor.ILogger
}

// NewMercadoLivreConverter creates the Mercado Livre converter
func NewMercadoLivreConverter(
	config common.MercadoLivreConfig,
	fetcher *httpclient.Fetcher,
	secrets *common.SecretResolver,
	m *metrics.Metrics,
	logger arbor.ILogger,
) *MercadoLivreConverter {
	return &MercadoLivreConverter{
		fetcher: fetcher,
		secrets: secrets,
		config:  config,
		limiter: rate.NewLimiter(rate.Limit(2), 2),
		metrics: m,
		logger:  logger,
	}
}

// Merchant implements interfaces.AffiliateConverter
func (c *MercadoLivreConverter) Merchant() models.Merchant {
	return models.MerchantMercadoLivre
}

// Convert implements interfaces.AffiliateConverter
func (c *MercadoLivreConverter) Convert(ctx context.Context, rawURL string) string {
	target := rawURL
	if u, err := url.Parse(rawURL); err == nil && strings.Contains(u.Path, "/social/") {
		if resolved := c.ResolveShowcase(ctx, rawURL); resolved != "" {
			target = resolved
		}
	}

	cleanURL := CleanTrackingParams(target)
	fallback := c.fallbackURL(cleanURL)

	cookie := c.secrets.Resolve(ctx, common.SecretMLAffiliateCookie, c.config.Cookie)
	if cookie == "" {
		c.logger.Warn().Msg("Mercado Livre affiliate cookie not configured, using fallback link")
		c.metrics.RecordFallback(c.Merchant().String())
		return fallback
	}

	shortURL, err := c.createLink(ctx, cleanURL, cookie)
	if err != nil {
		c.logger.Warn().Str("url", cleanURL).Err(err).Msg("Mercado Livre affiliate API failed, using fallback link")
		c.metrics.RecordFallback(c.Merchant().String())
		return fallback
	}

	c.logger.Debug().Str("url", cleanURL).Str("short_url", shortURL).Msg("Mercado Livre affiliate link created")
	return shortURL
}

func (c *MercadoLivreConverter) fallbackURL(cleanURL string) string {
	return setParam(c.config.FallbackURL, "ref", cleanURL)
}

// ResolveShowcase returns the product (or curated list) URL highlighted on a
// social showcase page, or "" when the page yields nothing
func (c *MercadoLivreConverter) ResolveShowcase(ctx context.Context, showcaseURL string) string {
	resp, err := c.fetcher.Get(ctx, showcaseURL, nil)
	if err != nil {
		c.logger.Warn().Str("url", showcaseURL).Err(err).Msg("Failed to load showcase page")
		return ""
	}
	if resp.StatusCode != http.StatusOK {
		c.logger.Warn().Str("url", showcaseURL).Int("status", resp.StatusCode).Msg("Showcase page returned non-200")
		return ""
	}

	body := string(resp.Body)

	// 1. curated list embedded in the page state
	match := curatedListPattern.FindStringSubmatch(body)
	if match == nil {
		match = seeMoreLinkPattern.FindStringSubmatch(body)
	}
	if match != nil && strings.Contains(match[1], "lista.mercadolivre.com.br") {
		return unescapeJSONSlashes(match[1])
	}

	// 2. featured product anchor
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err == nil {
		if href, ok := doc.Find(featuredProductSelector).First().Attr("href"); ok && href != "" {
			return resolveHref(resp.FinalURL, href)
		}
	}

	// 3. any href carrying the featured-card marker
	if m := featuredHrefRegexp.FindStringSubmatch(body); m != nil {
		return resolveHref(resp.FinalURL, m[1])
	}

	c.logger.Debug().Str("url", showcaseURL).Msg("No featured product found on showcase page")
	return ""
}

// resolveHref makes a page-relative href absolute against the page URL
func resolveHref(pageURL, href string) string {
	base, err := url.Parse(pageURL)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

func unescapeJSONSlashes(s string) string {
	s = strings.ReplaceAll(s, `\u002F`, "/")
	return strings.ReplaceAll(s, `\/`, "/")
}

type mlLinkResponse struct {
	URL      string `json:"url"`
	ShortURL string `json:"short_url"`
}

func (c *MercadoLivreConverter) createLink(ctx context.Context, cleanURL, cookie string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	payload, err := json.Marshal(map[string]string{"url": cleanURL, "tag": c.config.Tag})
	if err != nil {
		return "", err
	}

	resp, err := c.fetcher.Fetch(ctx, httpclient.Request{
		Method: http.MethodPost,
		URL:    c.config.APIURL,
		Body:   payload,
		Headers: map[string]string{
			"Content-Type": "application/json",
			"Accept":       "application/json, text/plain, */*",
			"Cookie":       cookie,
			"Origin":       "https://www.mercadolivre.com.br",
			"Referer":      cleanURL,
		},
		Timeout:         c.config.Timeout.Std(),
		FollowRedirects: false,
		// pages fetched while resolving showcases leave _csrf cookies in the session jar
		NoCookieJar: true,
	})
	if err != nil {
		return "", err
	}

	// A redirect means the session cookie expired and we were sent to login
	if resp.StatusCode >= 300 && resp.StatusCode < 400 {
		return "", &httpclient.PermanentError{
			StatusCode: resp.StatusCode,
			Endpoint:   c.config.APIURL,
			Message:    "redirected, affiliate cookie probably expired",
		}
	}
	if resp.StatusCode != http.StatusOK {
		return "", httpclient.ClassifyResponse(c.config.APIURL, resp, nil)
	}

	var single mlLinkResponse
	if err := json.Unmarshal(resp.Body, &single); err == nil {
		if single.URL != "" {
			return single.URL, nil
		}
		if single.ShortURL != "" {
			return single.ShortURL, nil
		}
	}

	var list []mlLinkResponse
	if err := json.Unmarshal(resp.Body, &list); err == nil && len(list) > 0 && list[0].ShortURL != "" {
		return list[0].ShortURL, nil
	}

	return "", &httpclient.PermanentError{
		StatusCode: resp.StatusCode,
		Endpoint:   c.config.APIURL,
		Message:    "response carried no link",
	}
}
