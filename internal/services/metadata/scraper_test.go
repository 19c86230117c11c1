package metadata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/promolink/internal/common"
	"github.com/ternarybob/promolink/internal/httpclient"
	"github.com/ternarybob/promolink/internal/models"
)

const productPage = `<html><head>
<title>Fone Bluetooth XYZ | Amazon.com.br</title>
<meta property="og:title" content="Fone Bluetooth XYZ">
</head><body>
<img id="landingImage" data-a-dynamic-image='{"https://m.media-amazon.com/images/I/big.jpg":[1500,1500],"https://m.media-amazon.com/images/I/small.jpg":[500,500]}' src="https://m.media-amazon.com/images/I/src.jpg">
</body></html>`

const captchaPage = `<html><head><title>Amazon.com.br Robot Check</title></head><body>captcha</body></html>`

func newTestScraper(t *testing.T, agents ...string) *Scraper {
	t.Helper()
	logger := arbor.NewLogger()
	s := NewScraper(common.ScraperConfig{MaxAttempts: 3, RequestTimeout: common.Duration(5 * time.Second), UserAgents: agents},
		httpclient.NewFetcher(logger), nil, logger)
	s.sleep = func(context.Context, time.Duration) {}
	return s
}

func TestCanonicalURL(t *testing.T) {
	assert.Equal(t, "https://www.amazon.com.br/dp/B0ABCDEFGH",
		CanonicalURL("https://www.amazon.com.br/Fone-Bluetooth/dp/B0ABCDEFGH/ref=sr_1_1?keywords=fone&tag=x-20"))
	assert.Equal(t, "https://www.amazon.com.br/dp/B0ABCDEFGH",
		CanonicalURL("https://www.amazon.com.br/gp/product/B0ABCDEFGH?th=1"))
	assert.Equal(t, "https://www.mercadolivre.com.br/p/MLB123", CanonicalURL("https://www.mercadolivre.com.br/p/MLB123"))
}

func TestParseProductPage(t *testing.T) {
	tests := []struct {
		name      string
		html      string
		wantTitle string
		wantImage string
		blocked   bool
	}{
		{"og title and dynamic image", productPage, "Fone Bluetooth XYZ", "https://m.media-amazon.com/images/I/big.jpg", false},
		{"captcha title", captchaPage, "", "", true},
		{"generic store title", `<html><head><title>Amazon.com.br</title></head></html>`, "", "", true},
		{"title suffix trimmed", `<html><head><title>Panela Antiaderente : Amazon.com.br: Cozinha</title></head></html>`, "Panela Antiaderente", "", false},
		{"og image protocol relative", `<html><head><meta property="og:title" content="Cadeira"><meta property="og:image" content="//img.example.com/c.jpg"></head></html>`, "Cadeira", "https://img.example.com/c.jpg", false},
		{"old hires fallback", `<html><head><title>Mesa</title></head><body><img id="main-image" data-old-hires="https://img/hires.jpg" src="https://img/s.jpg"></body></html>`, "Mesa", "https://img/hires.jpg", false},
		{"og title mentioning robot ignored", `<html><head><title>Aspirador Robô X</title><meta property="og:title" content="robot check"></head></html>`, "Aspirador Robô X", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			title, image, blocked := parseProductPage([]byte(tt.html))
			assert.Equal(t, tt.blocked, blocked)
			assert.Equal(t, tt.wantTitle, title)
			assert.Equal(t, tt.wantImage, image)
		})
	}
}

func TestScraper_RotatesUserAgentUntilUnblocked(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Header.Get("User-Agent") == "agent-blocked" {
			_, _ = w.Write([]byte(captchaPage))
			return
		}
		_, _ = w.Write([]byte(productPage))
	}))
	defer server.Close()

	s := newTestScraper(t, "agent-blocked", "agent-ok")
	meta := s.Fetch(context.Background(), server.URL+"/produto")

	require.True(t, meta.HasTitle())
	assert.Equal(t, "Fone Bluetooth XYZ", meta.Title)
	assert.Equal(t, "https://m.media-amazon.com/images/I/big.jpg", meta.ImageURL)
	assert.Equal(t, int32(2), calls.Load())
}

func TestScraper_AllAttemptsBlocked(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`<html><head><title>503 - Erro</title></head></html>`))
	}))
	defer server.Close()

	s := newTestScraper(t)
	meta := s.Fetch(context.Background(), server.URL)

	require.NotNil(t, meta)
	assert.False(t, meta.HasTitle())
	assert.Equal(t, http.StatusServiceUnavailable, meta.StatusCode)
	assert.Equal(t, int32(3), calls.Load())
}

type stubShopee struct {
	url string
}

func (s *stubShopee) LookupMetadata(ctx context.Context, rawURL string) *models.ProductMetadata {
	s.url = rawURL
	return &models.ProductMetadata{Title: "Tênis Casual"}
}

func TestScraper_DelegatesShopee(t *testing.T) {
	logger := arbor.NewLogger()
	shopee := &stubShopee{}
	s := NewScraper(common.ScraperConfig{MaxAttempts: 1}, httpclient.NewFetcher(logger), shopee, logger)

	meta := s.Fetch(context.Background(), "https://shopee.com.br/Tenis-Casual-i.123.456")

	assert.Equal(t, "Tênis Casual", meta.Title)
	assert.Equal(t, "https://shopee.com.br/Tenis-Casual-i.123.456", shopee.url)
}

func TestScraper_FetchWithImage(t *testing.T) {
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/produto", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><head><meta property="og:title" content="Garrafa Térmica"><meta property="og:image" content="` + server.URL + `/img.jpg"></head></html>`))
	})
	mux.HandleFunc("/img.jpg", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("jpeg-bytes"))
	})

	dir := filepath.Join(t.TempDir(), "downloads")
	s := newTestScraper(t)
	meta := s.FetchWithImage(context.Background(), server.URL+"/produto", dir)

	require.NotEmpty(t, meta.LocalImagePath)
	data, err := os.ReadFile(meta.LocalImagePath)
	require.NoError(t, err)
	assert.Equal(t, "jpeg-bytes", string(data))
	assert.Equal(t, dir, filepath.Dir(meta.LocalImagePath))
}

func TestScraper_DownloadErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	s := newTestScraper(t)

	_, err := s.Download(context.Background(), "", t.TempDir())
	assert.Error(t, err)

	_, err = s.Download(context.Background(), server.URL+"/missing.jpg", t.TempDir())
	assert.Error(t, err)
}
