// Package metadata scrapes product titles and images from store pages.
package metadata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/promolink/internal/common"
	"github.com/ternarybob/promolink/internal/httpclient"
	"github.com/ternarybob/promolink/internal/models"
	"github.com/ternarybob/promolink/internal/services/affiliate"
)

// Page titles that mean we got an error or anti-bot page instead of the product
var blockedTitleKeywords = []string{
	"robot check", "captcha", "503 - erro", "service unavailable", "indisponível", "acesso negado", "forbidden",
}

// A title equal to a bare store name is a landing page, not a product
var genericStoreTitles = []string{"amazon.com.br", "amazon", "mercado livre", "mercadolivre"}

// ShopeeLookup resolves Shopee listings, whose pages render client-side
type ShopeeLookup interface {
	LookupMetadata(ctx context.Context, rawURL string) *models.ProductMetadata
}

// Scraper fetches product pages and extracts title and image
type Scraper struct {
	fetcher *httpclient.Fetcher
	config  common.ScraperConfig
	shopee  ShopeeLookup
	sleep   func(ctx context.Context, d time.Duration)
	logger  arbor.ILogger
}

// NewScraper creates a scraper. shopee may be nil.
func NewScraper(config common.ScraperConfig, fetcher *httpclient.Fetcher, shopee ShopeeLookup, logger arbor.ILogger) *Scraper {
	return &Scraper{
		fetcher: fetcher,
		config:  config,
		shopee:  shopee,
		sleep:   sleepContext,
		logger:  logger,
	}
}

func sleepContext(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// CanonicalURL reduces Amazon product URLs to /dp/<ASIN>, which blocks less
// often than long tracking URLs. Other URLs are returned unchanged.
func CanonicalURL(rawURL string) string {
	if affiliate.Classify(rawURL) != models.MerchantAmazon {
		return rawURL
	}
	asin := affiliate.ExtractASIN(rawURL)
	if asin == "" {
		return rawURL
	}
	host := "www.amazon.com.br"
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		host = u.Host
	}
	return fmt.Sprintf("https://%s/dp/%s", host, asin)
}

// Fetch returns the product title and image URL of rawURL. The result is never
// nil; an empty Title means every attempt was blocked or failed.
func (s *Scraper) Fetch(ctx context.Context, rawURL string) *models.ProductMetadata {
	if s.shopee != nil && affiliate.Classify(rawURL) == models.MerchantShopee {
		if meta := s.shopee.LookupMetadata(ctx, rawURL); meta != nil {
			return meta
		}
		return &models.ProductMetadata{}
	}

	target := CanonicalURL(rawURL)
	meta := &models.ProductMetadata{}

	attempts := s.config.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 0; attempt < attempts; attempt++ {
		last := attempt == attempts-1
		if attempt > 0 {
			s.sleep(ctx, jitter())
		}
		if ctx.Err() != nil {
			break
		}

		headers := map[string]string{"Accept": "text/html,application/xhtml+xml"}
		if ua := s.userAgent(attempt); ua != "" {
			headers["User-Agent"] = ua
		}

		resp, err := s.fetcher.Fetch(ctx, httpclient.Request{
			URL:             target,
			Headers:         headers,
			FollowRedirects: true,
			Timeout:         s.config.RequestTimeout.Std(),
		})
		if err != nil {
			s.logger.Debug().Str("url", target).Int("attempt", attempt+1).Err(err).Msg("Product page request failed")
			continue
		}

		meta.StatusCode = resp.StatusCode
		if resp.StatusCode != http.StatusOK && !last {
			s.logger.Debug().Str("url", target).Int("attempt", attempt+1).Int("status", resp.StatusCode).Msg("Product page returned non-200")
			continue
		}

		title, image, blocked := parseProductPage(resp.Body)
		if blocked {
			s.logger.Debug().Str("url", target).Int("attempt", attempt+1).Msg("Product page blocked")
			continue
		}
		if title == "" {
			continue
		}

		meta.Title = title
		meta.ImageURL = image
		s.logger.Debug().Str("url", target).Int("attempt", attempt+1).Str("title", title).Msg("Product metadata scraped")
		return meta
	}

	return meta
}

func (s *Scraper) userAgent(attempt int) string {
	if len(s.config.UserAgents) == 0 {
		return ""
	}
	return s.config.UserAgents[attempt%len(s.config.UserAgents)]
}

func jitter() time.Duration {
	return 500*time.Millisecond + time.Duration(rand.Int63n(int64(time.Second)))
}

// parseProductPage extracts title and image from a product page
func parseProductPage(body []byte) (title, image string, blocked bool) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", "", false
	}

	rawTitle := strings.TrimSpace(doc.Find("title").First().Text())
	if isBlockedTitle(rawTitle) {
		return "", "", true
	}

	ogTitle, _ := doc.Find(`meta[property="og:title"]`).Attr("content")
	lowerOG := strings.ToLower(ogTitle)
	if strings.TrimSpace(ogTitle) != "" && !strings.Contains(lowerOG, "captcha") && !strings.Contains(lowerOG, "robot") {
		title = strings.TrimSpace(ogTitle)
	} else if rawTitle != "" {
		title = trimStoreSuffix(rawTitle)
	}
	if isBlockedTitle(title) {
		return "", "", true
	}

	image, _ = doc.Find(`meta[property="og:image"]`).Attr("content")
	if image == "" || strings.Contains(strings.ToLower(image), "captcha") {
		image = amazonImage(doc)
	}
	if strings.HasPrefix(image, "//") {
		image = "https:" + image
	}

	return title, image, false
}

func isBlockedTitle(title string) bool {
	lower := strings.ToLower(strings.TrimSpace(title))
	for _, kw := range blockedTitleKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	for _, name := range genericStoreTitles {
		if lower == name {
			return true
		}
	}
	return false
}

func trimStoreSuffix(title string) string {
	if i := strings.Index(title, " | Amazon.com.br"); i >= 0 {
		title = title[:i]
	}
	if i := strings.Index(title, ": Amazon.com.br:"); i >= 0 {
		title = title[:i]
	}
	return strings.TrimSpace(title)
}

// amazonImage reads the main product image of an Amazon page
func amazonImage(doc *goquery.Document) string {
	img := doc.Find("img#landingImage").First()
	if img.Length() == 0 {
		img = doc.Find("img#main-image").First()
	}
	if img.Length() == 0 {
		return ""
	}

	if dynamic, ok := img.Attr("data-a-dynamic-image"); ok && dynamic != "" {
		// {"https://...jpg":[500,500], ...}; the first key is the preferred size
		dec := json.NewDecoder(strings.NewReader(dynamic))
		if tok, err := dec.Token(); err == nil && tok == json.Delim('{') {
			if key, err := dec.Token(); err == nil {
				if s, ok := key.(string); ok && s != "" {
					return s
				}
			}
		}
	}
	if hires, ok := img.Attr("data-old-hires"); ok && hires != "" {
		return hires
	}
	src, _ := img.Attr("src")
	return src
}

// Download saves imageURL under dir and returns the file path
func (s *Scraper) Download(ctx context.Context, imageURL, dir string) (string, error) {
	if imageURL == "" {
		return "", fmt.Errorf("empty image url")
	}
	if strings.HasPrefix(imageURL, "//") {
		imageURL = "https:" + imageURL
	}

	resp, err := s.fetcher.Get(ctx, imageURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to download image: %w", err)
	}
	if err := httpclient.ClassifyResponse(imageURL, resp, nil); err != nil {
		return "", err
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create downloads directory: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("scraped_%s.jpg", uuid.New().String()))
	if err := os.WriteFile(path, resp.Body, 0644); err != nil {
		return "", fmt.Errorf("failed to write image: %w", err)
	}

	s.logger.Debug().Str("path", path).Msg("Product image saved")
	return path, nil
}

// FetchWithImage scrapes rawURL and downloads its image into dir
func (s *Scraper) FetchWithImage(ctx context.Context, rawURL, dir string) *models.ProductMetadata {
	meta := s.Fetch(ctx, rawURL)
	if meta.ImageURL == "" {
		return meta
	}
	path, err := s.Download(ctx, meta.ImageURL, dir)
	if err != nil {
		s.logger.Warn().Str("url", rawURL).Err(err).Msg("Failed to download product image")
		return meta
	}
	meta.LocalImagePath = path
	return meta
}
