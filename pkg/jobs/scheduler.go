package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler runs the periodic sync-and-scan on a cron schedule.
type Scheduler struct {
	runner *Runner
	cron   *cron.Cron
}

// NewScheduler registers the scheduled sync on the runner's configured cron
// expression.
func NewScheduler(runner *Runner) (*Scheduler, error) {
	c := cron.New()

	schedule := runner.config.Schedule
	if schedule == "" {
		schedule = DefaultConfig().Schedule
	}

	_, err := c.AddFunc(schedule, func() {
		ctx := context.Background()
		started := time.Now()
		result, err := runner.ScheduledMetricSync(ctx)
		if err != nil {
			runner.logger.WithField("error", err.Error()).Error("Scheduled metric sync failed")
			return
		}
		runner.logger.WithFields(map[string]interface{}{
			"duration":        time.Since(started).String(),
			"synced":          result.Batch.Total,
			"sync_failures":   result.Batch.Failed,
			"anomalies_found": result.Scan.AnomaliesFound,
		}).Info("Scheduled metric sync completed")
	})
	if err != nil {
		return nil, fmt.Errorf("invalid sync schedule %q: %w", schedule, err)
	}

	return &Scheduler{runner: runner, cron: c}, nil
}

// Start begins running scheduled jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.runner.logger.WithField("schedule", s.runner.config.Schedule).Info("Job scheduler started")
}

// Stop stops the scheduler and waits for a running job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.runner.logger.Info("Job scheduler stopped")
}
