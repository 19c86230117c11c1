package affiliate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/promolink/internal/common"
	"github.com/ternarybob/promolink/internal/httpclient"
	"github.com/ternarybob/promolink/internal/models"
)

const shopeeImageBase = "https://down-br.img.susercontent.com/file/"

var (
	shopeeSlugPattern = regexp.MustCompile(`^(.+)-i\.\d+\.\d+$`)
	searchTitleSuffix = regexp.MustCompile(`(?i)\s*[|\-–]\s*shopee.*$`)
	numericSegment    = regexp.MustCompile(`^\d+$`)
)

// LookupMetadata returns the title and image of a Shopee listing. Tiers run
// in order until one yields a title: URL slug, storefront REST endpoint,
// affiliate GraphQL (item id, then keyword) and a web-search snippet.
// Every tier swallows its own failures.
func (c *ShopeeConverter) LookupMetadata(ctx context.Context, rawURL string) *models.ProductMetadata {
	meta := &models.ProductMetadata{}
	ids, hasIDs := ExtractShopeeIDs(rawURL)

	tiers := []struct {
		name string
		run  func() *models.ProductMetadata
	}{
		{"slug", func() *models.ProductMetadata { return &models.ProductMetadata{Title: ShopeeSlugTitle(rawURL)} }},
		{"storefront", func() *models.ProductMetadata {
			if !hasIDs {
				return nil
			}
			return c.storefrontLookup(ctx, ids)
		}},
		{"graphql", func() *models.ProductMetadata { return c.graphQLLookup(ctx, ids, hasIDs, rawURL) }},
		{"search", func() *models.ProductMetadata { return c.searchLookup(ctx, ids, hasIDs, rawURL) }},
	}

	for _, tier := range tiers {
		result := c.runTier(tier.name, rawURL, tier.run)
		if result == nil {
			continue
		}
		if meta.ImageURL == "" {
			meta.ImageURL = result.ImageURL
		}
		if result.HasTitle() {
			meta.Title = result.Title
			c.logger.Debug().Str("url", rawURL).Str("tier", tier.name).Msg("Shopee metadata resolved")
			return meta
		}
	}

	c.logger.Debug().Str("url", rawURL).Msg("No Shopee metadata tier produced a title")
	return meta
}

func (c *ShopeeConverter) runTier(name, rawURL string, run func() *models.ProductMetadata) (result *models.ProductMetadata) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Warn().Str("tier", name).Str("url", rawURL).Str("panic", fmt.Sprintf("%v", r)).Msg("Shopee metadata tier panicked")
			result = nil
		}
	}()
	return run()
}

// ShopeeSlugTitle derives a title from a "/Product-Name-i.<shop>.<item>" path
func ShopeeSlugTitle(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	m := shopeeSlugPattern.FindStringSubmatch(path.Base(u.Path))
	if m == nil {
		return ""
	}
	slug := m[1]
	if decoded, err := url.PathUnescape(slug); err == nil {
		slug = decoded
	}
	return strings.Join(strings.Fields(strings.ReplaceAll(slug, "-", " ")), " ")
}

// keywordFromURL returns the longest non-numeric path segment as search words
func keywordFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	best := ""
	for _, segment := range strings.Split(u.Path, "/") {
		if segment == "" || numericSegment.MatchString(segment) || segment == "product" || segment == "universal-link" {
			continue
		}
		if decoded, err := url.PathUnescape(segment); err == nil {
			segment = decoded
		}
		if len(segment) > len(best) {
			best = segment
		}
	}
	if m := shopeeSlugPattern.FindStringSubmatch(best); m != nil {
		best = m[1]
	}
	return strings.Join(strings.Fields(strings.ReplaceAll(best, "-", " ")), " ")
}

func shopeeImageURL(image string) string {
	if image == "" || strings.HasPrefix(image, "http") {
		return image
	}
	return shopeeImageBase + image
}

func (c *ShopeeConverter) storefrontLookup(ctx context.Context, ids ShopeeIDs) *models.ProductMetadata {
	if c.config.StorefrontURL == "" {
		return nil
	}

	endpoint := fmt.Sprintf("%s?itemid=%s&shopid=%s", c.config.StorefrontURL, url.QueryEscape(ids.ItemID), url.QueryEscape(ids.ShopID))
	resp, err := c.fetcher.Fetch(ctx, httpclient.Request{
		URL: endpoint,
		Headers: map[string]string{
			"Accept":           "application/json",
			"Referer":          "https://shopee.com.br/",
			"X-Requested-With": "XMLHttpRequest",
		},
		Timeout:         c.config.Timeout.Std(),
		FollowRedirects: true,
	})
	if err != nil {
		c.logger.Debug().Err(err).Msg("Shopee storefront lookup failed")
		return nil
	}
	if resp.StatusCode != http.StatusOK {
		c.logger.Debug().Int("status", resp.StatusCode).Msg("Shopee storefront lookup returned non-200")
		return nil
	}

	type item struct {
		Name  string `json:"name"`
		Image string `json:"image"`
	}
	var body struct {
		Data *item `json:"data"`
		Item *item `json:"item"`
	}
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return nil
	}
	found := body.Data
	if found == nil || found.Name == "" {
		found = body.Item
	}
	if found == nil {
		return nil
	}
	return &models.ProductMetadata{Title: strings.TrimSpace(found.Name), ImageURL: shopeeImageURL(found.Image)}
}

type productOfferNodes struct {
	ProductOfferV2 struct {
		Nodes []struct {
			ProductName string `json:"productName"`
			ImageURL    string `json:"imageUrl"`
		} `json:"nodes"`
	} `json:"productOfferV2"`
}

func (c *ShopeeConverter) graphQLLookup(ctx context.Context, ids ShopeeIDs, hasIDs bool, rawURL string) *models.ProductMetadata {
	secret := c.secrets.Resolve(ctx, common.SecretShopeeSecret, c.config.Secret)
	if c.config.AppID == "" || secret == "" {
		return nil
	}

	var queries []string
	if hasIDs {
		queries = append(queries, fmt.Sprintf(`{productOfferV2(itemId:%s,shopId:%s){nodes{productName imageUrl}}}`, ids.ItemID, ids.ShopID))
	}
	if keyword := keywordFromURL(rawURL); keyword != "" {
		encoded, _ := json.Marshal(keyword)
		queries = append(queries, fmt.Sprintf(`{productOfferV2(keyword:%s,limit:1){nodes{productName imageUrl}}}`, encoded))
	}

	for _, query := range queries {
		var data productOfferNodes
		if err := c.graphQL(ctx, query, secret, &data); err != nil {
			c.logger.Debug().Err(err).Msg("Shopee GraphQL lookup failed")
			continue
		}
		if nodes := data.ProductOfferV2.Nodes; len(nodes) > 0 && nodes[0].ProductName != "" {
			return &models.ProductMetadata{Title: nodes[0].ProductName, ImageURL: nodes[0].ImageURL}
		}
	}
	return nil
}

func (c *ShopeeConverter) searchLookup(ctx context.Context, ids ShopeeIDs, hasIDs bool, rawURL string) *models.ProductMetadata {
	if c.config.SearchURL == "" {
		return nil
	}

	query := keywordFromURL(rawURL)
	if hasIDs {
		query = fmt.Sprintf("shopee i.%s.%s %s", ids.ShopID, ids.ItemID, query)
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}

	resp, err := c.fetcher.Get(ctx, c.config.SearchURL+"?q="+url.QueryEscape(query), nil)
	if err != nil || resp.StatusCode != http.StatusOK {
		return nil
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return nil
	}

	var title string
	doc.Find(".result__a, .result__title a").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := strings.TrimSpace(searchTitleSuffix.ReplaceAllString(strings.TrimSpace(s.Text()), ""))
		if text == "" {
			return true
		}
		title = text
		return false
	})
	if title == "" {
		return nil
	}
	return &models.ProductMetadata{Title: title}
}
