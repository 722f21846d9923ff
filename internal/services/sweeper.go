package services

import (
	"context"
	"fmt"
	"time"

	"print-gateway/internal/logger"
	"print-gateway/internal/models"
)

const sweepBatch = 500

type SweeperConfig struct {
	Interval         time.Duration
	JobExpiryGrace   time.Duration
	SessionRetention time.Duration
}

// Sweeper expires abandoned jobs and deletes long-dead sessions. Token
// expiry itself is evaluated at redemption time and never depends on it.
type Sweeper struct {
	jobs      *JobService
	sessions  *SessionService
	publisher EventPublisher
	cfg       SweeperConfig
	log       *logger.Logger
	now       Clock
}

func NewSweeper(jobs *JobService, sessions *SessionService, publisher EventPublisher, cfg SweeperConfig, log *logger.Logger) *Sweeper {
	return &Sweeper{
		jobs:      jobs,
		sessions:  sessions,
		publisher: publisher,
		cfg:       cfg,
		log:       log,
		now:       jobs.now,
	}
}

// Run sweeps every Interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	if s.cfg.Interval <= 0 {
		s.log.Info("SWEEPER", "Disabled (no interval)")
		return
	}
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.log.LogProcess("SWEEPER", fmt.Sprintf("Started, interval %s", s.cfg.Interval))
	for {
		select {
		case <-ctx.Done():
			s.log.LogProcess("SWEEPER", "Stopped")
			return
		case <-ticker.C:
			if _, _, err := s.SweepOnce(ctx); err != nil {
				s.log.Error("SWEEPER", err.Error())
			}
		}
	}
}

func (s *Sweeper) SweepOnce(ctx context.Context) (int, int64, error) {
	now := s.now()

	expired, err := s.jobs.ExpireStale(ctx, now.Add(-s.cfg.JobExpiryGrace), sweepBatch)
	for _, job := range expired {
		s.publish(job)
	}
	if err != nil {
		return len(expired), 0, err
	}

	purged, err := s.sessions.PurgeExpired(ctx, now.Add(-s.cfg.SessionRetention))
	if err != nil {
		return len(expired), 0, err
	}

	if len(expired) > 0 || purged > 0 {
		s.log.LogProcess("SWEEPER", fmt.Sprintf("Expired %d jobs, purged %d sessions", len(expired), purged))
	}
	return len(expired), purged, nil
}

func (s *Sweeper) publish(job *models.PrintJob) {
	if s.publisher == nil {
		return
	}
	event := &models.JobEvent{
		Type:      models.EventJobExpired,
		JobID:     job.ID,
		Status:    job.Status,
		UserID:    job.UserID,
		Timestamp: s.now(),
	}
	if err := s.publisher.PublishJobEvent(event); err != nil {
		s.log.Error("KAFKA", fmt.Sprintf("Failed to publish expiry of job %s: %v", job.ID, err))
	}
}
