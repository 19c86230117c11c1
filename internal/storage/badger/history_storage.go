package badger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/promolink/internal/common"
	"github.com/ternarybob/promolink/internal/interfaces"
	"github.com/ternarybob/promolink/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// HistoryStorage implements interfaces.HistoryStorage for Badger
type HistoryStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewHistoryStorage creates a new HistoryStorage instance
func NewHistoryStorage(db *BadgerDB, logger arbor.ILogger) interfaces.HistoryStorage {
	return &HistoryStorage{
		db:     db,
		logger: logger,
	}
}

// Add stores a new history entry with trimmed title and price
func (s *HistoryStorage) Add(ctx context.Context, entry *models.HistoryEntry) error {
	if entry.ID == "" {
		entry.ID = common.NewHistoryID()
	}
	entry.Title = strings.TrimSpace(entry.Title)
	entry.Price = strings.TrimSpace(entry.Price)
	if entry.PostedAt.IsZero() {
		entry.PostedAt = time.Now()
	}

	if err := s.db.Store().Insert(entry.ID, entry); err != nil {
		return fmt.Errorf("failed to add history entry: %w", err)
	}
	return nil
}

// ExistsSince reports whether an entry with this exact title and price was posted after since
func (s *HistoryStorage) ExistsSince(ctx context.Context, title, price string, since time.Time) (bool, error) {
	query := badgerhold.Where("Title").Eq(strings.TrimSpace(title)).
		And("Price").Eq(strings.TrimSpace(price)).
		And("PostedAt").Gt(since)

	count, err := s.db.Store().Count(&models.HistoryEntry{}, query)
	if err != nil {
		return false, fmt.Errorf("failed to query history: %w", err)
	}
	return count > 0, nil
}

// PurgeBefore deletes entries older than before
func (s *HistoryStorage) PurgeBefore(ctx context.Context, before time.Time) (int, error) {
	var expired []models.HistoryEntry
	if err := s.db.Store().Find(&expired, badgerhold.Where("PostedAt").Lt(before)); err != nil {
		return 0, fmt.Errorf("failed to find expired history: %w", err)
	}

	removed := 0
	for _, entry := range expired {
		if err := s.db.Store().Delete(entry.ID, &models.HistoryEntry{}); err != nil {
			s.logger.Warn().Str("id", entry.ID).Err(err).Msg("Failed to delete expired history entry")
			continue
		}
		removed++
	}
	return removed, nil
}
