package handlers

import (
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/promolink/internal/interfaces"
	"github.com/ternarybob/promolink/internal/models"
	"github.com/ternarybob/promolink/internal/services/affiliate"
)

// LinksHandler exposes link replacement and single URL conversion
type LinksHandler struct {
	processor interfaces.LinkProcessor
	converter interfaces.LinkConverter
	logger    arbor.ILogger
}

func NewLinksHandler(processor interfaces.LinkProcessor, converter interfaces.LinkConverter, logger arbor.ILogger) *LinksHandler {
	return &LinksHandler{
		processor: processor,
		converter: converter,
		logger:    logger,
	}
}

type processRequest struct {
	Text      string `json:"text"`
	ExtraLink string `json:"extra_link"`
}

type processResponse struct {
	Text  string                `json:"text"`
	Links models.PlaceholderMap `json:"links"`
}

// ProcessHandler handles POST /api/links/process
func (h *LinksHandler) ProcessHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var req processRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	text, links := h.processor.ProcessAndReplace(r.Context(), req.Text, req.ExtraLink)
	h.logger.Debug().Int("links", len(links)).Msg("Processed links")
	WriteJSON(w, http.StatusOK, processResponse{Text: text, Links: links})
}

type convertRequest struct {
	URL string `json:"url"`
}

// ConvertHandler handles POST /api/links/convert
func (h *LinksHandler) ConvertHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var req convertRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		WriteError(w, http.StatusBadRequest, "url is required")
		return
	}

	converted := h.converter.Convert(r.Context(), req.URL)
	WriteJSON(w, http.StatusOK, map[string]string{
		"url":      converted,
		"merchant": affiliate.Classify(req.URL).String(),
	})
}
