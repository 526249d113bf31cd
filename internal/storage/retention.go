package storage

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Sweeper prunes old runs from a RunStore on a cron schedule.
type Sweeper struct {
	store  RunStore
	maxAge time.Duration
	logger *slog.Logger
	cron   *cron.Cron
}

// NewSweeper creates a retention sweeper. schedule is a cron expression
// (descriptors like "@hourly" work too).
func NewSweeper(store RunStore, maxAge time.Duration, schedule string, logger *slog.Logger) (*Sweeper, error) {
	s := &Sweeper{
		store:  store,
		maxAge: maxAge,
		logger: logger,
		cron:   cron.New(),
	}

	if _, err := s.cron.AddFunc(schedule, s.sweep); err != nil {
		return nil, err
	}
	return s, nil
}

// Start begins scheduled sweeping in the background.
func (s *Sweeper) Start() {
	s.cron.Start()
	s.logger.Info("retention sweeper started", slog.Duration("max_age", s.maxAge))
}

// Stop halts scheduling and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Sweeper) sweep() {
	cutoff := time.Now().UTC().Add(-s.maxAge)

	n, err := s.store.DeleteRunsBefore(context.Background(), cutoff)
	if err != nil {
		s.logger.Error("retention sweep failed", slog.String("error", err.Error()))
		return
	}
	if n > 0 {
		s.logger.Info("retention sweep pruned runs", slog.Int64("deleted", n))
	}
}
