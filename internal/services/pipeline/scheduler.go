package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/promolink/internal/common"
	"github.com/ternarybob/promolink/internal/services/dedup"
)

// Scheduler periodically purges expired history entries
type Scheduler struct {
	cron   *cron.Cron
	gate   *dedup.Gate
	config common.HistoryConfig
	logger arbor.ILogger
}

// NewScheduler creates a purge scheduler
func NewScheduler(gate *dedup.Gate, config common.HistoryConfig, logger arbor.ILogger) *Scheduler {
	return &Scheduler{
		cron:   cron.New(),
		gate:   gate,
		config: config,
		logger: logger,
	}
}

// Start registers the purge job. An empty schedule disables it.
func (s *Scheduler) Start() error {
	if s.config.PurgeSchedule == "" || s.config.Retention <= 0 {
		s.logger.Info().Msg("History purge disabled")
		return nil
	}

	_, err := s.cron.AddFunc(s.config.PurgeSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := s.RunPurge(ctx); err != nil {
			s.logger.Error().Err(err).Msg("History purge failed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid purge schedule %q: %w", s.config.PurgeSchedule, err)
	}

	s.cron.Start()
	s.logger.Info().Str("schedule", s.config.PurgeSchedule).Dur("retention", s.config.Retention.Std()).Msg("History purge scheduled")
	return nil
}

// Stop stops the scheduler and waits for a running purge
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// RunPurge deletes history older than the configured retention
func (s *Scheduler) RunPurge(ctx context.Context) (int, error) {
	removed, err := s.gate.Purge(ctx, s.config.Retention.Std())
	if err != nil {
		return 0, err
	}
	s.logger.Info().Int("removed", removed).Msg("History purged")
	return removed, nil
}
