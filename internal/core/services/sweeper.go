package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorhill/cronexpr"

	"github.com/custodia-labs/docqa/internal/core/ports/driving"
	"github.com/custodia-labs/docqa/internal/logger"
)

// DefaultSweepSchedule runs the expiry sweep at the top of every hour.
const DefaultSweepSchedule = "0 * * * *"

// DefaultSessionTTL is how long an untouched session is kept.
const DefaultSessionTTL = 24 * time.Hour

// Sweeper periodically expires sessions that have not been written
// within the TTL. It has no external control API beyond Start and Stop.
type Sweeper struct {
	schedule *cronexpr.Expression
	ttl      time.Duration
	sessions driving.SessionService
	log      *slog.Logger
	now      func() time.Time

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewSweeper parses the cron schedule and creates a sweeper.
func NewSweeper(schedule string, ttl time.Duration, sessions driving.SessionService) (*Sweeper, error) {
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}
	expr, err := cronexpr.Parse(schedule)
	if err != nil {
		return nil, fmt.Errorf("parse sweep schedule %q: %w", schedule, err)
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &Sweeper{
		schedule: expr,
		ttl:      ttl,
		sessions: sessions,
		log:      logger.Module("services", "sweeper"),
		now:      time.Now,
	}, nil
}

// Start runs the sweep loop. It blocks until Stop is called or ctx is done.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil // Already running
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	stopCh, doneCh := s.stopCh, s.doneCh
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		close(doneCh)
	}()

	for {
		next := s.Next(s.now())
		if next.IsZero() {
			return fmt.Errorf("sweep schedule has no future runs")
		}
		s.log.Debug("next session sweep scheduled", "at", next)
		timer := time.NewTimer(time.Until(next))

		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-stopCh:
			timer.Stop()
			return nil
		case <-timer.C:
			if _, err := s.RunOnce(ctx, s.now()); err != nil {
				s.log.Error("session sweep failed", "error", err)
			}
		}
	}
}

// Stop ends the sweep loop and waits for an in-progress sweep to finish.
func (s *Sweeper) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	doneCh := s.doneCh
	s.mu.Unlock()

	<-doneCh
	return nil
}

// RunOnce expires every session last written before now minus the TTL.
func (s *Sweeper) RunOnce(ctx context.Context, now time.Time) ([]string, error) {
	cutoff := now.Add(-s.ttl)
	deleted, err := s.sessions.Expire(ctx, cutoff)
	s.log.Info("session sweep complete", "cutoff", cutoff, "deleted", len(deleted))
	return deleted, err
}

// Next returns the next scheduled sweep after t, or the zero time if the
// schedule has no further runs.
func (s *Sweeper) Next(t time.Time) time.Time {
	return s.schedule.Next(t)
}
