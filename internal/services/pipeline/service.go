// Package pipeline turns incoming promo posts into published offers.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/promolink/internal/common"
	"github.com/ternarybob/promolink/internal/interfaces"
	"github.com/ternarybob/promolink/internal/models"
	"github.com/ternarybob/promolink/internal/services/dedup"
	"github.com/ternarybob/promolink/internal/services/links"
	"github.com/ternarybob/promolink/internal/services/offers"
	"github.com/ternarybob/promolink/internal/services/settings"
)

// ErrOfferResolved is returned when approving or rejecting an offer twice
var ErrOfferResolved = errors.New("offer already resolved")

const (
	seenMessagesLimit = 1000
	seenGroupsLimit   = 500
)

// Dependencies are the collaborators of a pipeline Service. Scraper,
// Rewriter and Notifier may be nil.
type Dependencies struct {
	Settings  *settings.Service
	Processor interfaces.LinkProcessor
	Scraper   interfaces.ProductScraper
	Gate      *dedup.Gate
	Rewriter  interfaces.Rewriter
	Offers    interfaces.OfferStore
	Notifier  interfaces.Notifier
	Queue     *Queue
}

// Service runs the per-message steps: filters, duplicate gate, media, link
// replacement, rewrite, assembly and routing to the queue or the approval flow
type Service struct {
	deps     Dependencies
	config   common.PipelineConfig
	messages *seenSet
	groups   *seenSet
	logger   arbor.ILogger
}

// NewService creates a pipeline service
func NewService(deps Dependencies, config common.PipelineConfig, logger arbor.ILogger) *Service {
	return &Service{
		deps:     deps,
		config:   config,
		messages: newSeenSet(seenMessagesLimit),
		groups:   newSeenSet(seenGroupsLimit),
		logger:   logger,
	}
}

func skipped(reason string) *models.Outcome {
	return &models.Outcome{Status: models.OutcomeSkipped, Reason: reason}
}

func normalizeChannel(channel string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(channel), "@"))
}

func (s *Service) isMonitored(ctx context.Context, channel string) bool {
	sources := s.deps.Settings.SourceChannels(ctx)
	if len(sources) == 0 {
		return true
	}
	want := normalizeChannel(channel)
	for _, source := range sources {
		if normalizeChannel(source) == want {
			return true
		}
	}
	return false
}

func matchesKeywords(text string, keywords []string) bool {
	if len(keywords) == 0 {
		return true
	}
	lower := strings.ToLower(text)
	for _, kw := range keywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// HandleMessage processes one incoming message. Errors are also reported to
// the admin chat when one is configured.
func (s *Service) HandleMessage(ctx context.Context, msg models.IncomingMessage) (*models.Outcome, error) {
	outcome, err := s.handle(ctx, msg)
	if err != nil {
		s.logger.Error().Str("channel", msg.Channel).Int64("message_id", msg.MessageID).Err(err).Msg("Failed to handle message")
		s.notifyError(ctx, err)
		return nil, err
	}
	return outcome, nil
}

func (s *Service) handle(ctx context.Context, msg models.IncomingMessage) (*models.Outcome, error) {
	if s.deps.Settings.Paused(ctx) {
		return skipped("paused"), nil
	}
	if !s.isMonitored(ctx, msg.Channel) {
		return skipped("channel not monitored"), nil
	}

	if msg.MessageID != 0 && s.messages.CheckAndAdd(msg.MessageID) {
		return skipped("message already processed"), nil
	}
	if msg.GroupID != 0 && s.groups.CheckAndAdd(msg.GroupID) {
		return skipped("album already processed"), nil
	}

	text := msg.Text
	if strings.TrimSpace(text) == "" && msg.MediaPath == "" {
		return skipped("empty message"), nil
	}

	if minPrice := s.deps.Settings.MinPrice(ctx); minPrice > 0 {
		if value, ok := offers.ExtractBRLPrice(text); ok && value < minPrice {
			return skipped(fmt.Sprintf("price %.2f below minimum %.2f", value, minPrice)), nil
		}
	}
	if !matchesKeywords(text, s.deps.Settings.Keywords(ctx)) {
		return skipped("no keyword match"), nil
	}

	title := s.dedupTitle(ctx, text)
	price := offers.ExtractPrice(text)
	if price == "" {
		price = "0"
	}

	duplicate, err := s.deps.Gate.IsDuplicate(ctx, title, price, s.deps.Settings.CooldownMinutes(ctx))
	if err != nil {
		return nil, err
	}
	if !duplicate {
		if duplicate, err = s.deps.Gate.IsFuzzyDuplicate(ctx, title, price); err != nil {
			return nil, err
		}
	}
	if duplicate {
		s.logger.Info().Str("title", title).Str("price", price).Msg("Duplicate offer ignored")
		return &models.Outcome{Status: models.OutcomeDuplicate, Reason: title}, nil
	}

	urls := links.ExtractURLs(text)
	mediaPath := msg.MediaPath
	if mediaPath == "" && len(urls) > 0 && s.deps.Scraper != nil {
		mediaPath = s.deps.Scraper.FetchWithImage(ctx, urls[0], s.config.DownloadsDir).LocalImagePath
	}

	replaced, placeholders := s.deps.Processor.ProcessAndReplace(ctx, text, msg.ExtraLink)

	rewritten := replaced
	if s.deps.Rewriter != nil {
		if out, err := s.deps.Rewriter.Rewrite(ctx, replaced); err == nil && strings.TrimSpace(out) != "" {
			rewritten = out
		} else if err != nil {
			s.logger.Warn().Err(err).Msg("Rewrite failed, using original text")
		}
	}

	final := Assemble(rewritten, placeholders, s.deps.Settings.Signature(ctx))

	offer := models.QueuedOffer{
		Text:       final,
		MediaPath:  mediaPath,
		DedupTitle: title,
		DedupPrice: price,
	}
	if len(urls) > 0 {
		offer.SourceURL = urls[0]
	}

	outcome := &models.Outcome{Text: final, Links: placeholders}

	if s.deps.Settings.ManualApproval(ctx) {
		id, err := s.deps.Offers.Add(ctx, offer)
		if err != nil {
			return nil, fmt.Errorf("failed to store pending offer: %w", err)
		}
		s.sendPreview(ctx, id, offer)
		outcome.Status = models.OutcomePending
		outcome.OfferID = id
		s.logger.Info().Str("offer_id", id).Msg("Offer waiting for approval")
		return outcome, nil
	}

	if err := s.deps.Queue.Enqueue(offer); err != nil {
		return nil, err
	}
	outcome.Status = models.OutcomeQueued
	s.logger.Info().Str("title", title).Int("queue_len", s.deps.Queue.Len()).Msg("Offer queued for publishing")
	return outcome, nil
}

// dedupTitle prefers the scraped product title of the first link, then the
// link itself, then the cleaned first line of the message
func (s *Service) dedupTitle(ctx context.Context, text string) string {
	ref := firstReference(text)
	if ref == "" {
		return fallbackTitle(text)
	}
	if s.deps.Scraper != nil {
		if meta := s.deps.Scraper.Fetch(ctx, ref); meta.HasTitle() {
			return strings.TrimSpace(meta.Title)
		}
	}
	return ref
}

func (s *Service) sendPreview(ctx context.Context, id string, offer models.QueuedOffer) {
	if s.deps.Notifier == nil {
		return
	}
	preview := offer
	preview.Text = "<b>NOVA OFERTA ENCONTRADA!</b>\n\n" + offer.Text
	if err := s.deps.Notifier.SendPreview(ctx, id, preview); err != nil {
		s.logger.Warn().Str("offer_id", id).Err(err).Msg("Failed to send approval preview")
	}
}

func (s *Service) notifyError(ctx context.Context, err error) {
	if s.deps.Notifier == nil {
		return
	}
	text := err.Error()
	if len(text) > 500 {
		text = text[:500]
	}
	if nerr := s.deps.Notifier.Notify(ctx, "⚠️ Erro no monitor: "+text); nerr != nil {
		s.logger.Warn().Err(nerr).Msg("Failed to notify admin")
	}
}

// Approve queues a pending offer for publishing
func (s *Service) Approve(ctx context.Context, id string) error {
	offer, err := s.deps.Offers.Get(ctx, id)
	if err != nil {
		return err
	}
	if offer.Status == models.OfferStatusDone {
		return ErrOfferResolved
	}
	if err := s.deps.Queue.Enqueue(offer.Offer); err != nil {
		return err
	}
	if err := s.deps.Offers.MarkDone(ctx, id); err != nil {
		return err
	}
	s.logger.Info().Str("offer_id", id).Msg("Offer approved")
	return nil
}

// Reject discards a pending offer and its downloaded media
func (s *Service) Reject(ctx context.Context, id string) error {
	offer, err := s.deps.Offers.Get(ctx, id)
	if err != nil {
		return err
	}
	if offer.Status == models.OfferStatusDone {
		return ErrOfferResolved
	}
	if err := s.deps.Offers.MarkDone(ctx, id); err != nil {
		return err
	}
	removeMedia(offer.Offer.MediaPath, s.logger)
	s.logger.Info().Str("offer_id", id).Msg("Offer rejected")
	return nil
}

// Pending lists offers waiting for approval
func (s *Service) Pending(ctx context.Context) ([]*models.Offer, error) {
	return s.deps.Offers.ListPending(ctx)
}

func removeMedia(path string, logger arbor.ILogger) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logger.Warn().Str("path", path).Err(err).Msg("Failed to remove local media")
	}
}
