// Package affiliate turns product URLs into affiliate-tagged URLs, one
// converter per merchant.
package affiliate

import (
	"net/url"
	"strings"

	"github.com/ternarybob/promolink/internal/models"
)

// merchantDomains lists host fragments per merchant. Short-link hosts sit next
// to the canonical ones so an unexpanded short link still lands on its store.
var merchantDomains = []struct {
	merchant models.Merchant
	domains  []string
}{
	{models.MerchantMercadoLivre, []string{"mercadolivre.com.br", "mercadolivre.com", "mercadolibre.com", "meli.la"}},
	{models.MerchantAmazon, []string{"amazon.com.br", "amazon.com", "amzn.to", "amzn.com", "amzlink.to", "amz.run"}},
	{models.MerchantAliExpress, []string{"aliexpress.com", "aliexpress.us", "aliexpress.ru"}},
	{models.MerchantShopee, []string{"shopee.com.br", "shopee.com", "shope.ee"}},
}

// Classify returns the merchant of rawURL, MerchantUnknown when nothing matches
func Classify(rawURL string) models.Merchant {
	host := hostOf(rawURL)
	if host == "" {
		return models.MerchantUnknown
	}
	for _, entry := range merchantDomains {
		for _, domain := range entry.domains {
			if strings.Contains(host, domain) {
				return entry.merchant
			}
		}
	}
	return models.MerchantUnknown
}

// hostOf returns the lower-cased host without a leading "www."
func hostOf(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	if u.Host == "" && u.Scheme == "" {
		// scheme-less input such as "amzn.to/abc"
		if u, err = url.Parse("https://" + strings.TrimSpace(rawURL)); err != nil {
			return ""
		}
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}
