// Package dedup decides whether an offer was already published recently.
package dedup

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/promolink/internal/common"
	"github.com/ternarybob/promolink/internal/interfaces"
	"github.com/ternarybob/promolink/internal/metrics"
	"github.com/ternarybob/promolink/internal/models"
)

// Gate checks offer signatures against the published history.
// Concurrent checks for the same signature are not serialised: two racing
// candidates may both pass, and the later Record wins.
type Gate struct {
	history interfaces.HistoryStorage
	posts   interfaces.PostStorage
	config  common.DedupConfig
	clock   clockwork.Clock
	metrics *metrics.Metrics
	logger  arbor.ILogger
}

// GateOption configures a Gate
type GateOption func(*Gate)

// WithClock replaces the wall clock, used by tests to move time forward
func WithClock(clock clockwork.Clock) GateOption {
	return func(g *Gate) {
		g.clock = clock
	}
}

// WithGateMetrics attaches Prometheus collectors
func WithGateMetrics(m *metrics.Metrics) GateOption {
	return func(g *Gate) {
		g.metrics = m
	}
}

// NewGate creates a Gate. posts may be nil, which disables the fuzzy check.
func NewGate(
	history interfaces.HistoryStorage,
	posts interfaces.PostStorage,
	config common.DedupConfig,
	logger arbor.ILogger,
	opts ...GateOption,
) *Gate {
	g := &Gate{
		history: history,
		posts:   posts,
		config:  config,
		clock:   clockwork.NewRealClock(),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// IsDuplicate reports whether the trimmed (title, price) pair was recorded
// within the last windowMinutes. A non-positive window uses the configured one.
func (g *Gate) IsDuplicate(ctx context.Context, title, price string, windowMinutes int) (bool, error) {
	if windowMinutes <= 0 {
		windowMinutes = g.config.WindowMinutes
	}
	since := g.clock.Now().Add(-time.Duration(windowMinutes) * time.Minute)

	exists, err := g.history.ExistsSince(ctx, strings.TrimSpace(title), strings.TrimSpace(price), since)
	if err != nil {
		return false, fmt.Errorf("failed to query history: %w", err)
	}

	if exists {
		g.metrics.RecordDedup("duplicate")
		g.logger.Debug().Str("title", title).Str("price", price).Int("window_minutes", windowMinutes).Msg("Duplicate offer within window")
	} else {
		g.metrics.RecordDedup("unique")
	}
	return exists, nil
}

// Record stores the signature of an offer that was actually published
func (g *Gate) Record(ctx context.Context, title, price string) error {
	entry := &models.HistoryEntry{
		Title:    strings.TrimSpace(title),
		Price:    strings.TrimSpace(price),
		PostedAt: g.clock.Now(),
	}
	if err := g.history.Add(ctx, entry); err != nil {
		return fmt.Errorf("failed to record history: %w", err)
	}
	return nil
}

// RecordPost keeps the published text for later fuzzy checks
func (g *Gate) RecordPost(ctx context.Context, text, price, postURL string) error {
	if g.posts == nil {
		return nil
	}
	post := &models.PublishedPost{
		Text:     text,
		Price:    strings.TrimSpace(price),
		PostURL:  postURL,
		PostedAt: g.clock.Now(),
	}
	if err := g.posts.Save(ctx, post); err != nil {
		return fmt.Errorf("failed to save published post: %w", err)
	}
	return nil
}

// IsFuzzyDuplicate compares the candidate with the most recent published posts
// using token overlap on the title and exact equality on the price
func (g *Gate) IsFuzzyDuplicate(ctx context.Context, title, price string) (bool, error) {
	if g.posts == nil || g.config.RecentPosts <= 0 {
		return false, nil
	}

	recent, err := g.posts.Recent(ctx, g.config.RecentPosts)
	if err != nil {
		return false, fmt.Errorf("failed to load recent posts: %w", err)
	}

	for _, post := range recent {
		if fuzzyMatch(title, price, post.Text, post.Price, g.config.FuzzyThreshold, g.config.MinTokenLength) {
			g.metrics.RecordDedup("fuzzy_duplicate")
			g.logger.Debug().Str("title", title).Str("post_id", post.ID).Msg("Offer matches a recent post")
			return true, nil
		}
	}
	return false, nil
}

// Purge drops history entries older than retention
func (g *Gate) Purge(ctx context.Context, retention time.Duration) (int, error) {
	return g.history.PurgeBefore(ctx, g.clock.Now().Add(-retention))
}
