package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler wraps cron-based housekeeping jobs.
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger
}

func New(logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cron:   cron.New(cron.WithLocation(time.UTC), cron.WithSeconds()),
		logger: logger,
	}
}

// ScheduleInterval registers a periodic job every given duration.
// Sub-second intervals are rounded up to one second.
func (s *Scheduler) ScheduleInterval(name string, interval time.Duration, job func()) (cron.EntryID, error) {
	if interval <= 0 {
		return 0, fmt.Errorf("interval for %s must be positive", name)
	}
	seconds := int(interval.Seconds())
	if seconds <= 0 {
		seconds = 1
	}

	id, err := s.cron.AddFunc(fmt.Sprintf("@every %ds", seconds), func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("Scheduled job panicked", "job", name, "panic", r)
			}
		}()
		job()
	})
	if err != nil {
		return 0, fmt.Errorf("failed to schedule %s: %w", name, err)
	}

	s.logger.Debug("Scheduled job", "job", name, "every", interval)
	return id, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// Run starts the scheduler and stops it when ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.Start()
	<-ctx.Done()
	s.Stop()
	return nil
}
