package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/promolink/internal/common"
	"github.com/ternarybob/promolink/internal/interfaces"
	"github.com/ternarybob/promolink/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// PostStorage implements interfaces.PostStorage for Badger
type PostStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewPostStorage creates a new PostStorage instance
func NewPostStorage(db *BadgerDB, logger arbor.ILogger) interfaces.PostStorage {
	return &PostStorage{
		db:     db,
		logger: logger,
	}
}

// Save stores a published post
func (s *PostStorage) Save(ctx context.Context, post *models.PublishedPost) error {
	if post.ID == "" {
		post.ID = common.NewPostID()
	}
	if post.PostedAt.IsZero() {
		post.PostedAt = time.Now()
	}
	if err := s.db.Store().Upsert(post.ID, post); err != nil {
		return fmt.Errorf("failed to save published post: %w", err)
	}
	return nil
}

// Recent returns the most recently published posts, newest first
func (s *PostStorage) Recent(ctx context.Context, limit int) ([]*models.PublishedPost, error) {
	var records []models.PublishedPost
	query := badgerhold.Where("ID").Ne("").SortBy("PostedAt").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := s.db.Store().Find(&records, query); err != nil {
		return nil, fmt.Errorf("failed to list published posts: %w", err)
	}

	posts := make([]*models.PublishedPost, len(records))
	for i := range records {
		posts[i] = &records[i]
	}
	return posts, nil
}
