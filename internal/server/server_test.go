package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/promolink/internal/app"
	"github.com/ternarybob/promolink/internal/common"
	"github.com/ternarybob/promolink/internal/handlers"
	"github.com/ternarybob/promolink/internal/metrics"
	"github.com/ternarybob/promolink/internal/models"
	"github.com/ternarybob/promolink/internal/services/settings"
	"github.com/ternarybob/promolink/internal/storage/badger"
)

type echoProcessor struct{}

func (echoProcessor) ProcessAndReplace(ctx context.Context, text, extraLink string) (string, models.PlaceholderMap) {
	return text, models.PlaceholderMap{}
}

type panicConverter struct{}

func (panicConverter) Convert(ctx context.Context, rawURL string) string { panic("boom") }

type idlePipeline struct{}

func (idlePipeline) HandleMessage(ctx context.Context, msg models.IncomingMessage) (*models.Outcome, error) {
	return &models.Outcome{Status: models.OutcomeSkipped, Reason: "paused"}, nil
}
func (idlePipeline) Approve(ctx context.Context, id string) error { return nil }
func (idlePipeline) Reject(ctx context.Context, id string) error  { return nil }
func (idlePipeline) Pending(ctx context.Context) ([]*models.Offer, error) {
	return []*models.Offer{}, nil
}

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	logger := arbor.NewLogger()

	manager, err := badger.NewManager(logger, &common.BadgerConfig{Path: filepath.Join(t.TempDir(), "db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = manager.Close() })

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)
	m.RecordPublished("telegram")

	application := &app.App{
		Config:          common.NewDefaultConfig(),
		Logger:          logger,
		Registry:        registry,
		APIHandler:      handlers.NewAPIHandler(logger),
		LinksHandler:    handlers.NewLinksHandler(echoProcessor{}, panicConverter{}, logger),
		OffersHandler:   handlers.NewOffersHandler(idlePipeline{}, logger),
		SettingsHandler: handlers.NewSettingsHandler(settings.NewService(manager.KeyValueStorage(), logger), logger),
	}
	return New(application).Handler()
}

func serve(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRoutes(t *testing.T) {
	h := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"health", "GET", "/healthz", "", http.StatusOK},
		{"version", "GET", "/api/version", "", http.StatusOK},
		{"process links", "POST", "/api/links/process", `{"text":"oi"}`, http.StatusOK},
		{"submit offer", "POST", "/api/offers", `{"text":"oi"}`, http.StatusOK},
		{"list pending", "GET", "/api/offers", "", http.StatusOK},
		{"offers wrong method", "DELETE", "/api/offers", "", http.StatusMethodNotAllowed},
		{"approve", "POST", "/api/offers/offer_1/approve", "", http.StatusOK},
		{"reject", "POST", "/api/offers/offer_1/reject", "", http.StatusOK},
		{"unknown offer action", "POST", "/api/offers/offer_1/edit", "", http.StatusNotFound},
		{"get setting", "GET", "/api/settings/paused", "", http.StatusOK},
		{"put setting", "PUT", "/api/settings/paused", `{"value":"true"}`, http.StatusOK},
		{"list settings", "GET", "/api/settings", "", http.StatusOK},
		{"unknown api", "GET", "/api/nothing", "", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(h, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	rec := serve(newTestServer(t), "GET", "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `promolink_offers_published_total{channel="telegram"} 1`)
}

func TestRecoveryMiddleware(t *testing.T) {
	rec := serve(newTestServer(t), "POST", "/api/links/convert", `{"url":"https://amzn.to/x"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
