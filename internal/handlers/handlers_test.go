package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/promolink/internal/common"
	"github.com/ternarybob/promolink/internal/interfaces"
	"github.com/ternarybob/promolink/internal/models"
	"github.com/ternarybob/promolink/internal/services/pipeline"
	"github.com/ternarybob/promolink/internal/services/settings"
	"github.com/ternarybob/promolink/internal/storage/badger"
)

type stubProcessor struct{}

func (stubProcessor) ProcessAndReplace(ctx context.Context, text, extraLink string) (string, models.PlaceholderMap) {
	url := "https://amzn.to/x#aff"
	return "Oferta [LINK_0] [LINK_1]", models.PlaceholderMap{"[LINK_0]": &url, "[LINK_1]": nil}
}

type stubConverter struct{}

func (stubConverter) Convert(ctx context.Context, rawURL string) string { return rawURL + "?tag=t-20" }

type stubPipeline struct {
	outcome *models.Outcome
	err     error
	offers  map[string]bool
}

func (p *stubPipeline) HandleMessage(ctx context.Context, msg models.IncomingMessage) (*models.Outcome, error) {
	return p.outcome, p.err
}

func (p *stubPipeline) resolve(id string) error {
	done, ok := p.offers[id]
	if !ok {
		return interfaces.ErrOfferNotFound
	}
	if done {
		return pipeline.ErrOfferResolved
	}
	p.offers[id] = true
	return nil
}

func (p *stubPipeline) Approve(ctx context.Context, id string) error { return p.resolve(id) }
func (p *stubPipeline) Reject(ctx context.Context, id string) error  { return p.resolve(id) }
func (p *stubPipeline) Pending(ctx context.Context) ([]*models.Offer, error) {
	return []*models.Offer{{ID: "offer_1", Status: models.OfferStatusPending}}, nil
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestLinksHandler(t *testing.T) {
	h := NewLinksHandler(stubProcessor{}, stubConverter{}, arbor.NewLogger())

	t.Run("process", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/links/process", strings.NewReader(`{"text":"Oferta https://amzn.to/x https://t.me/x"}`))
		rec := httptest.NewRecorder()
		h.ProcessHandler(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		body := decode(t, rec)
		assert.Equal(t, "Oferta [LINK_0] [LINK_1]", body["text"])
		links := body["links"].(map[string]interface{})
		assert.Equal(t, "https://amzn.to/x#aff", links["[LINK_0]"])
		assert.Nil(t, links["[LINK_1]"])
	})

	t.Run("convert", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/links/convert", strings.NewReader(`{"url":"https://www.amazon.com.br/dp/B0TEST1234"}`))
		rec := httptest.NewRecorder()
		h.ConvertHandler(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		body := decode(t, rec)
		assert.Equal(t, "https://www.amazon.com.br/dp/B0TEST1234?tag=t-20", body["url"])
		assert.Equal(t, "amazon", body["merchant"])
	})

	t.Run("bad requests", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ConvertHandler(rec, httptest.NewRequest(http.MethodPost, "/api/links/convert", strings.NewReader(`{}`)))
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = httptest.NewRecorder()
		h.ProcessHandler(rec, httptest.NewRequest(http.MethodPost, "/api/links/process", strings.NewReader(`not json`)))
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = httptest.NewRecorder()
		h.ProcessHandler(rec, httptest.NewRequest(http.MethodGet, "/api/links/process", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}

func TestOffersHandler(t *testing.T) {
	p := &stubPipeline{
		outcome: &models.Outcome{Status: models.OutcomeQueued, Text: "Oferta"},
		offers:  map[string]bool{"offer_1": false},
	}
	h := NewOffersHandler(p, arbor.NewLogger())

	rec := httptest.NewRecorder()
	h.SubmitHandler(rec, httptest.NewRequest(http.MethodPost, "/api/offers", strings.NewReader(`{"message_id":1,"text":"Oferta"}`)))
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "queued", decode(t, rec)["status"])

	p.outcome = &models.Outcome{Status: models.OutcomeDuplicate}
	rec = httptest.NewRecorder()
	h.SubmitHandler(rec, httptest.NewRequest(http.MethodPost, "/api/offers", strings.NewReader(`{"text":"Oferta"}`)))
	assert.Equal(t, http.StatusOK, rec.Code)

	p.err = pipeline.ErrQueueFull
	rec = httptest.NewRecorder()
	h.SubmitHandler(rec, httptest.NewRequest(http.MethodPost, "/api/offers", strings.NewReader(`{"text":"Oferta"}`)))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	h.ApproveHandler(rec, httptest.NewRequest(http.MethodPost, "/api/offers/offer_1/approve", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.RejectHandler(rec, httptest.NewRequest(http.MethodPost, "/api/offers/offer_1/reject", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = httptest.NewRecorder()
	h.ApproveHandler(rec, httptest.NewRequest(http.MethodPost, "/api/offers/offer_9/approve", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	h.ListPendingHandler(rec, httptest.NewRequest(http.MethodGet, "/api/offers", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "offer_1")
}

func TestSettingsHandler(t *testing.T) {
	logger := arbor.NewLogger()
	manager, err := badger.NewManager(logger, &common.BadgerConfig{Path: filepath.Join(t.TempDir(), "db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = manager.Close() })

	svc := settings.NewService(manager.KeyValueStorage(), logger)
	h := NewSettingsHandler(svc, logger)

	rec := httptest.NewRecorder()
	h.GetHandler(rec, httptest.NewRequest(http.MethodGet, "/api/settings/cooldown_minutes", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "60", decode(t, rec)["value"])

	rec = httptest.NewRecorder()
	h.UpdateHandler(rec, httptest.NewRequest(http.MethodPut, "/api/settings/min_price", strings.NewReader(`{"value":"49,90"}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.InDelta(t, 49.90, svc.MinPrice(context.Background()), 0.001)

	rec = httptest.NewRecorder()
	h.GetHandler(rec, httptest.NewRequest(http.MethodGet, "/api/settings/unknown", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	h.ListHandler(rec, httptest.NewRequest(http.MethodGet, "/api/settings", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "49,90", decode(t, rec)["min_price"])
}

func TestPathParam(t *testing.T) {
	assert.Equal(t, "abc", PathParam("/api/offers/abc/approve", "/api/offers/"))
	assert.Equal(t, "paused", PathParam("/api/settings/paused", "/api/settings/"))
	assert.Equal(t, "", PathParam("/api/other", "/api/offers/"))
}
