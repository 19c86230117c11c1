package badger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/promolink/internal/common"
	"github.com/ternarybob/promolink/internal/interfaces"
	"github.com/ternarybob/promolink/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// OfferStorage implements interfaces.OfferStore for Badger
type OfferStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewOfferStorage creates a new OfferStorage instance
func NewOfferStorage(db *BadgerDB, logger arbor.ILogger) interfaces.OfferStore {
	return &OfferStorage{
		db:     db,
		logger: logger,
	}
}

// Add stores a pending offer and returns its id
func (s *OfferStorage) Add(ctx context.Context, offer models.QueuedOffer) (string, error) {
	now := time.Now()
	record := &models.Offer{
		ID:        common.NewOfferID(),
		Offer:     offer,
		Status:    models.OfferStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.db.Store().Insert(record.ID, record); err != nil {
		return "", fmt.Errorf("failed to add offer: %w", err)
	}

	s.logger.Debug().Str("offer_id", record.ID).Msg("Offer stored for approval")
	return record.ID, nil
}

// Get retrieves an offer by id
func (s *OfferStorage) Get(ctx context.Context, id string) (*models.Offer, error) {
	var record models.Offer
	err := s.db.Store().Get(id, &record)
	if errors.Is(err, badgerhold.ErrNotFound) {
		return nil, interfaces.ErrOfferNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get offer %s: %w", id, err)
	}
	return &record, nil
}

// MarkDone flags an offer as handled (approved or rejected)
func (s *OfferStorage) MarkDone(ctx context.Context, id string) error {
	record, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	record.Status = models.OfferStatusDone
	record.UpdatedAt = time.Now()

	if err := s.db.Store().Update(id, record); err != nil {
		return fmt.Errorf("failed to mark offer %s done: %w", id, err)
	}
	return nil
}

// ListPending returns offers still waiting for a decision, oldest first
func (s *OfferStorage) ListPending(ctx context.Context) ([]*models.Offer, error) {
	var records []models.Offer
	query := badgerhold.Where("Status").Eq(models.OfferStatusPending).SortBy("CreatedAt")
	if err := s.db.Store().Find(&records, query); err != nil {
		return nil, fmt.Errorf("failed to list pending offers: %w", err)
	}

	offers := make([]*models.Offer, len(records))
	for i := range records {
		offers[i] = &records[i]
	}
	return offers, nil
}
