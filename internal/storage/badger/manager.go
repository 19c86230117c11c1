package badger

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/promolink/internal/common"
	"github.com/ternarybob/promolink/internal/interfaces"
)

// Manager implements the StorageManager interface for Badger
type Manager struct {
	db      *BadgerDB
	kv      interfaces.KeyValueStorage
	history interfaces.HistoryStorage
	offers  interfaces.OfferStore
	posts   interfaces.PostStorage
	logger  arbor.ILogger
}

// NewManager creates a new Badger storage manager
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (interfaces.StorageManager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	manager := &Manager{
		db:      db,
		kv:      NewKVStorage(db, logger),
		history: NewHistoryStorage(db, logger),
		offers:  NewOfferStorage(db, logger),
		posts:   NewPostStorage(db, logger),
		logger:  logger,
	}

	logger.Info().Str("path", config.Path).Msg("Badger storage manager initialized")

	return manager, nil
}

// KeyValueStorage returns the KeyValue storage interface
func (m *Manager) KeyValueStorage() interfaces.KeyValueStorage {
	return m.kv
}

// HistoryStorage returns the published-offer history
func (m *Manager) HistoryStorage() interfaces.HistoryStorage {
	return m.history
}

// OfferStore returns the pending-approval offer store
func (m *Manager) OfferStore() interfaces.OfferStore {
	return m.offers
}

// PostStorage returns the published post store
func (m *Manager) PostStorage() interfaces.PostStorage {
	return m.posts
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
