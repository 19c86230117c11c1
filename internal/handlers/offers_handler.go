package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/promolink/internal/interfaces"
	"github.com/ternarybob/promolink/internal/models"
	"github.com/ternarybob/promolink/internal/services/pipeline"
)

// OfferPipeline is the part of the pipeline service driven over HTTP
type OfferPipeline interface {
	HandleMessage(ctx context.Context, msg models.IncomingMessage) (*models.Outcome, error)
	Approve(ctx context.Context, id string) error
	Reject(ctx context.Context, id string) error
	Pending(ctx context.Context) ([]*models.Offer, error)
}

// OffersHandler submits messages to the pipeline and resolves pending offers
type OffersHandler struct {
	pipeline OfferPipeline
	logger   arbor.ILogger
}

func NewOffersHandler(pipeline OfferPipeline, logger arbor.ILogger) *OffersHandler {
	return &OffersHandler{
		pipeline: pipeline,
		logger:   logger,
	}
}

// SubmitHandler handles POST /api/offers
func (h *OffersHandler) SubmitHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var msg models.IncomingMessage
	if err := DecodeJSON(w, r, &msg); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	outcome, err := h.pipeline.HandleMessage(r.Context(), msg)
	if err != nil {
		if errors.Is(err, pipeline.ErrQueueFull) {
			WriteError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		WriteError(w, http.StatusInternalServerError, "Failed to process message")
		return
	}

	status := http.StatusOK
	if outcome.Status == models.OutcomeQueued || outcome.Status == models.OutcomePending {
		status = http.StatusAccepted
	}
	WriteJSON(w, status, outcome)
}

// ListPendingHandler handles GET /api/offers
func (h *OffersHandler) ListPendingHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	pending, err := h.pipeline.Pending(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list pending offers")
		WriteError(w, http.StatusInternalServerError, "Failed to list pending offers")
		return
	}
	WriteJSON(w, http.StatusOK, pending)
}

// ApproveHandler handles POST /api/offers/{id}/approve
func (h *OffersHandler) ApproveHandler(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, "approved", h.pipeline.Approve)
}

// RejectHandler handles POST /api/offers/{id}/reject
func (h *OffersHandler) RejectHandler(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, "rejected", h.pipeline.Reject)
}

func (h *OffersHandler) resolve(w http.ResponseWriter, r *http.Request, verb string, action func(context.Context, string) error) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	id := PathParam(r.URL.Path, "/api/offers/")
	if strings.TrimSpace(id) == "" {
		WriteError(w, http.StatusBadRequest, "Missing offer id")
		return
	}

	err := action(r.Context(), id)
	switch {
	case errors.Is(err, interfaces.ErrOfferNotFound):
		WriteError(w, http.StatusNotFound, "Offer not found")
	case errors.Is(err, pipeline.ErrOfferResolved):
		WriteError(w, http.StatusConflict, err.Error())
	case err != nil:
		h.logger.Error().Err(err).Str("offer_id", id).Msg("Failed to resolve offer")
		WriteError(w, http.StatusInternalServerError, "Failed to resolve offer")
	default:
		WriteSuccess(w, "Offer "+verb)
	}
}
