package session

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/shitan-ai/shitan/internal/observability"
)

// DefaultSweepSchedule runs the expiry sweep hourly.
const DefaultSweepSchedule = "@hourly"

// Sweeper periodically removes expired sessions from a Store and keeps the
// active-sessions gauge current.
type Sweeper struct {
	store    Store
	cron     *cron.Cron
	schedule string
	running  bool
}

// NewSweeper creates a sweeper on the given cron schedule.
func NewSweeper(store Store, schedule string) *Sweeper {
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}
	return &Sweeper{
		store:    store,
		cron:     cron.New(),
		schedule: schedule,
	}
}

// Start schedules the sweep and runs one immediately.
func (s *Sweeper) Start() error {
	if s.running {
		return fmt.Errorf("sweeper is already running")
	}
	if _, err := s.cron.AddFunc(s.schedule, func() {
		if err := s.SweepNow(); err != nil {
			log.Error().Err(err).Msg("Session sweep failed")
		}
	}); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", s.schedule, err)
	}

	s.cron.Start()
	s.running = true
	log.Info().Str("schedule", s.schedule).Msg("Session sweeper started")

	if err := s.SweepNow(); err != nil {
		log.Error().Err(err).Msg("Initial session sweep failed")
	}
	return nil
}

// Stop halts the schedule, waiting for a running sweep to finish.
func (s *Sweeper) Stop() {
	if !s.running {
		return
	}
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.running = false
	log.Info().Msg("Session sweeper stopped")
}

// SweepNow removes expired sessions once and refreshes the session gauge.
func (s *Sweeper) SweepNow() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	deleted, err := s.store.DeleteExpired(ctx)
	if err != nil {
		return err
	}
	if deleted > 0 {
		observability.RecordSessionsSwept(deleted)
		log.Info().Int("deleted", deleted).Msg("Expired sessions removed")
	}

	if n, err := s.store.Len(ctx); err == nil {
		observability.SetActiveSessions(n)
	}
	return nil
}
