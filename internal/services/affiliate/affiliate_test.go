package affiliate

import (
	"context"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/promolink/internal/common"
	"github.com/ternarybob/promolink/internal/httpclient"
	"github.com/ternarybob/promolink/internal/interfaces"
	"github.com/ternarybob/promolink/internal/models"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		url  string
		want models.Merchant
	}{
		{"https://www.amazon.com.br/dp/B08N5WRWNW", models.MerchantAmazon},
		{"https://amzn.to/3xYz", models.MerchantAmazon},
		{"amzn.to/3xYz", models.MerchantAmazon},
		{"https://WWW.AMAZON.COM/gp/product/B000000000", models.MerchantAmazon},
		{"https://produto.mercadolivre.com.br/MLB-123", models.MerchantMercadoLivre},
		{"https://mercadolivre.com/sec/1abc", models.MerchantMercadoLivre},
		{"https://meli.la/2xyz", models.MerchantMercadoLivre},
		{"https://pt.aliexpress.com/item/100500.html", models.MerchantAliExpress},
		{"https://s.click.aliexpress.com/e/_abc", models.MerchantAliExpress},
		{"https://shopee.com.br/Fone-i.1.2", models.MerchantShopee},
		{"https://s.shopee.com.br/abc", models.MerchantShopee},
		{"https://shope.ee/xyz", models.MerchantShopee},
		{"https://example.com/promo", models.MerchantUnknown},
		{"not a url", models.MerchantUnknown},
		{"", models.MerchantUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.url))
		})
	}
}

func TestCleanTrackingParams(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"strips utm", "https://example.com/p?utm_source=tg&id=5&utm_medium=x", "https://example.com/p?id=5"},
		{"strips everything", "https://example.com/p?fbclid=1&gclid=2", "https://example.com/p"},
		{"no query", "https://example.com/p", "https://example.com/p"},
		{"keeps encoding", "https://example.com/p?dl_target_url=https%3A%2F%2Fa.com%2Fx&sr=1", "https://example.com/p?dl_target_url=https%3A%2F%2Fa.com%2Fx"},
		{"keeps fragment", "https://example.com/p?utm_term=a#reviews", "https://example.com/p#reviews"},
		{"case insensitive key", "https://example.com/p?UTM_SOURCE=x&a=1", "https://example.com/p?a=1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CleanTrackingParams(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, CleanTrackingParams(got), "cleaning must be idempotent")
		})
	}
}

func TestAmazonConverter(t *testing.T) {
	ctx := context.Background()
	converter := NewAmazonConverter("mytag-20", nil, arbor.NewLogger())

	t.Run("asin rewrite", func(t *testing.T) {
		got := converter.Convert(ctx, "https://www.amazon.com.br/foo-bar/dp/B08N5WRWNW?tag=other&hvadid=123")
		assert.Equal(t, "https://www.amazon.com.br/dp/B08N5WRWNW?tag=mytag-20", got)
	})

	t.Run("lowercase asin is upper-cased", func(t *testing.T) {
		got := converter.Convert(ctx, "https://www.amazon.com.br/gp/product/b08n5wrwnw/ref=x")
		assert.Equal(t, "https://www.amazon.com.br/dp/B08N5WRWNW?tag=mytag-20", got)
	})

	t.Run("no asin injects tag", func(t *testing.T) {
		got := converter.Convert(ctx, "https://www.amazon.com.br/s?k=fone&tag=other&hvadid=1&utm_source=x")
		u, err := url.Parse(got)
		require.NoError(t, err)
		assert.Equal(t, "fone", u.Query().Get("k"))
		assert.Equal(t, []string{"mytag-20"}, u.Query()["tag"])
		assert.Empty(t, u.Query().Get("hvadid"))
		assert.Empty(t, u.Query().Get("utm_source"))
	})
}

func TestExtractASIN(t *testing.T) {
	assert.Equal(t, "B08N5WRWNW", ExtractASIN("https://www.amazon.com.br/dp/B08N5WRWNW"))
	assert.Equal(t, "8535914846", ExtractASIN("https://www.amazon.com.br/exec/obidos/ASIN/8535914846/"))
	assert.Equal(t, "B0C1234567", ExtractASIN("https://www.amazon.com.br/gp/aw/d/B0C1234567?th=1"))
	assert.Empty(t, ExtractASIN("https://www.amazon.com.br/s?k=livro"))
}

// Without credentials every converter still returns a non-empty, parseable URL
func TestConverters_FallbackNeverEmpty(t *testing.T) {
	ctx := context.Background()
	logger := arbor.NewLogger()
	fetcher := httpclient.NewFetcher(logger)
	secrets := common.NewSecretResolver(nil)

	converters := []interfaces.AffiliateConverter{
		NewAmazonConverter("", nil, logger),
		NewMercadoLivreConverter(common.NewDefaultConfig().MercadoLivre, fetcher, secrets, nil, logger),
		NewAliExpressConverter(common.AliExpressConfig{}, fetcher, secrets, nil, logger),
		NewShopeeConverter(common.ShopeeConfig{}, fetcher, secrets, nil, logger),
	}
	inputs := []string{
		"https://www.amazon.com.br/dp/B08N5WRWNW",
		"https://produto.mercadolivre.com.br/MLB-123-fone?utm_source=x",
		"https://pt.aliexpress.com/item/1005001.html?spm=abc",
		"https://shopee.com.br/Fone-i.11.22",
		"https://example.com/nothing",
	}

	for _, c := range converters {
		for _, in := range inputs {
			got := c.Convert(ctx, in)
			require.NotEmpty(t, got, "%s(%s)", c.Merchant(), in)
			u, err := url.Parse(got)
			require.NoError(t, err)
			assert.NotEmpty(t, u.Scheme)
			assert.NotEmpty(t, u.Host)
		}
	}
}

func TestRegistry_Convert(t *testing.T) {
	ctx := context.Background()
	logger := arbor.NewLogger()
	registry := NewRegistry(logger, NewAmazonConverter("mytag-20", nil, logger))

	assert.Equal(t, "https://www.amazon.com.br/dp/B08N5WRWNW?tag=mytag-20",
		registry.Convert(ctx, "https://www.amazon.com.br/x/dp/B08N5WRWNW?utm_source=a"))

	assert.Equal(t, "https://example.com/p?id=1",
		registry.Convert(ctx, "https://example.com/p?id=1&fbclid=zz"))

	// no Shopee converter registered: generic cleaning only
	assert.Equal(t, "https://shopee.com.br/Fone-i.1.2",
		registry.Convert(ctx, "https://shopee.com.br/Fone-i.1.2?utm_campaign=x"))

	_, ok := registry.Converter(models.MerchantAmazon)
	assert.True(t, ok)
}

func TestRegistry_ConvertedURLKeepsParams(t *testing.T) {
	ctx := context.Background()
	logger := arbor.NewLogger()
	// no cookie configured: the converter answers with its ref fallback link
	ml := NewMercadoLivreConverter(common.NewDefaultConfig().MercadoLivre, nil, common.NewSecretResolver(nil), nil, logger)
	registry := NewRegistry(logger, ml)

	got := registry.Convert(ctx, "https://produto.mercadolivre.com.br/MLB-123?utm_source=tg")

	u, err := url.Parse(got)
	require.NoError(t, err)
	assert.Equal(t, "drmk", u.Query().Get("matt_word"))
	assert.Equal(t, "https://produto.mercadolivre.com.br/MLB-123", u.Query().Get("ref"))
}
