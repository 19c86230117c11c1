package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/promolink/internal/interfaces"
	"github.com/ternarybob/promolink/internal/metrics"
	"github.com/ternarybob/promolink/internal/models"
	"github.com/ternarybob/promolink/internal/services/dedup"
	"github.com/ternarybob/promolink/internal/services/settings"
)

// Worker drains the publish queue. The first publisher is the primary
// destination; an offer counts as published only when it succeeds.
type Worker struct {
	queue      *Queue
	publishers []interfaces.Publisher
	gate       *dedup.Gate
	settings   *settings.Service
	notifier   interfaces.Notifier
	metrics    *metrics.Metrics
	clock      clockwork.Clock
	logger     arbor.ILogger
}

// WorkerOption configures a Worker
type WorkerOption func(*Worker)

// WithWorkerClock replaces the clock used for the publish delay
func WithWorkerClock(clock clockwork.Clock) WorkerOption {
	return func(w *Worker) {
		w.clock = clock
	}
}

// WithWorkerMetrics attaches Prometheus collectors
func WithWorkerMetrics(m *metrics.Metrics) WorkerOption {
	return func(w *Worker) {
		w.metrics = m
	}
}

// WithWorkerNotifier reports publish failures to the admin
func WithWorkerNotifier(n interfaces.Notifier) WorkerOption {
	return func(w *Worker) {
		w.notifier = n
	}
}

// NewWorker creates a publish worker
func NewWorker(queue *Queue, publishers []interfaces.Publisher, gate *dedup.Gate, settings *settings.Service, logger arbor.ILogger, opts ...WorkerOption) *Worker {
	w := &Worker{
		queue:      queue,
		publishers: publishers,
		gate:       gate,
		settings:   settings,
		clock:      clockwork.NewRealClock(),
		logger:     logger,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run publishes queued offers until ctx is cancelled
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info().Int("publishers", len(w.publishers)).Msg("Publish worker started")
	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("Publish worker stopped")
			return
		case offer := <-w.queue.C():
			if err := w.Process(ctx, offer); err != nil {
				w.logger.Error().Err(err).Msg("Failed to publish offer")
			}
		}
	}
}

// Process waits the configured delay, publishes the offer and records it
func (w *Worker) Process(ctx context.Context, offer models.QueuedOffer) error {
	defer removeMedia(offer.MediaPath, w.logger)

	if len(w.publishers) == 0 {
		return fmt.Errorf("no publisher configured")
	}

	if delay := w.settings.DelayMinutes(ctx); delay > 0 {
		w.logger.Debug().Int("delay_minutes", delay).Msg("Waiting before publishing")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.clock.After(time.Duration(delay) * time.Minute):
		}
	}

	primary := w.publishers[0]
	postURL, err := primary.Publish(ctx, offer)
	if err != nil {
		w.metrics.RecordPublishError(primary.Name())
		if w.notifier != nil {
			if nerr := w.notifier.Notify(ctx, "⚠️ Falha ao publicar oferta: "+err.Error()); nerr != nil {
				w.logger.Warn().Err(nerr).Msg("Failed to notify admin")
			}
		}
		return fmt.Errorf("%s publish failed: %w", primary.Name(), err)
	}
	w.metrics.RecordPublished(primary.Name())

	for _, p := range w.publishers[1:] {
		if _, err := p.Publish(ctx, offer); err != nil {
			w.metrics.RecordPublishError(p.Name())
			w.logger.Warn().Str("publisher", p.Name()).Err(err).Msg("Secondary publish failed")
			continue
		}
		w.metrics.RecordPublished(p.Name())
	}

	if err := w.gate.Record(ctx, offer.DedupTitle, offer.DedupPrice); err != nil {
		return err
	}
	if err := w.gate.RecordPost(ctx, offer.Text, offer.DedupPrice, postURL); err != nil {
		return err
	}

	w.logger.Info().Str("post_url", postURL).Str("title", offer.DedupTitle).Msg("Offer published")
	return nil
}
