// Package redis keeps the published-offer history in Redis so several
// bot instances can share one dedup window.
package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/promolink/internal/interfaces"
	"github.com/ternarybob/promolink/internal/models"
)

const keyPrefix = "promolink:history:"

// HistoryStorage implements interfaces.HistoryStorage on Redis.
// Each signature maps to the unix time in milliseconds of its most recent post and expires
// after the retention period, so PurgeBefore has nothing left to do.
type HistoryStorage struct {
	client    *goredis.Client
	retention time.Duration
	logger    arbor.ILogger
}

// Connect opens a client from a redis:// URL, falling back to treating the
// value as a plain host:port address
func Connect(ctx context.Context, redisURL string) (*goredis.Client, error) {
	opt, err := goredis.ParseURL(redisURL)
	if err != nil {
		opt = &goredis.Options{Addr: redisURL}
	}

	client := goredis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// NewHistoryStorage wraps an open client
func NewHistoryStorage(client *goredis.Client, retention time.Duration, logger arbor.ILogger) interfaces.HistoryStorage {
	return &HistoryStorage{
		client:    client,
		retention: retention,
		logger:    logger,
	}
}

// SignatureKey returns the Redis key for a (title, price) pair
func SignatureKey(title, price string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(title) + "\x00" + strings.TrimSpace(price)))
	return keyPrefix + hex.EncodeToString(sum[:])
}

// Add records the signature with its posting time
func (s *HistoryStorage) Add(ctx context.Context, entry *models.HistoryEntry) error {
	postedAt := entry.PostedAt
	if postedAt.IsZero() {
		postedAt = time.Now()
	}

	key := SignatureKey(entry.Title, entry.Price)
	if err := s.client.Set(ctx, key, postedAt.UnixMilli(), s.retention).Err(); err != nil {
		return fmt.Errorf("failed to add history entry: %w", err)
	}
	return nil
}

// ExistsSince reports whether the signature was posted after since
func (s *HistoryStorage) ExistsSince(ctx context.Context, title, price string, since time.Time) (bool, error) {
	value, err := s.client.Get(ctx, SignatureKey(title, price)).Result()
	if errors.Is(err, goredis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read history entry: %w", err)
	}

	posted, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		s.logger.Warn().Str("value", value).Msg("Ignoring malformed history timestamp")
		return false, nil
	}
	return time.UnixMilli(posted).After(since), nil
}

// PurgeBefore is a no-op: keys expire on their own
func (s *HistoryStorage) PurgeBefore(ctx context.Context, before time.Time) (int, error) {
	return 0, nil
}
