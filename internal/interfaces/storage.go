package interfaces

import (
	"context"
	"errors"
	"time"

	"github.com/ternarybob/promolink/internal/models"
)

// ErrOfferNotFound is returned when an offer id is unknown to the store
var ErrOfferNotFound = errors.New("offer not found")

// HistoryStorage persists signatures of published offers
type HistoryStorage interface {
	// Add stores a new history entry
	Add(ctx context.Context, entry *models.HistoryEntry) error

	// ExistsSince reports whether an entry with exactly this title and price
	// was posted after the given instant
	ExistsSince(ctx context.Context, title, price string, since time.Time) (bool, error)

	// PurgeBefore deletes entries posted before the given instant and returns how many were removed
	PurgeBefore(ctx context.Context, before time.Time) (int, error)
}

// OfferStore keeps offers that wait for manual approval
type OfferStore interface {
	Add(ctx context.Context, offer models.QueuedOffer) (string, error)
	Get(ctx context.Context, id string) (*models.Offer, error)
	MarkDone(ctx context.Context, id string) error
	ListPending(ctx context.Context) ([]*models.Offer, error)
}

// PostStorage keeps the final text of published posts
type PostStorage interface {
	Save(ctx context.Context, post *models.PublishedPost) error
	Recent(ctx context.Context, limit int) ([]*models.PublishedPost, error)
}

// StorageManager groups the Badger-backed stores
type StorageManager interface {
	KeyValueStorage() KeyValueStorage
	HistoryStorage() HistoryStorage
	OfferStore() OfferStore
	PostStorage() PostStorage
	Close() error
}
