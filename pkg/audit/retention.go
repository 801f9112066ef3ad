package audit

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/fieldline/fieldline/pkg/observability"
)

// RetentionJob prunes old denial records on a cron schedule.
type RetentionJob struct {
	logger        *observability.Logger
	trail         *DBLogger
	retentionDays int
	cron          *cron.Cron
}

// NewRetentionJob creates a pruning job. It does nothing until Start.
func NewRetentionJob(trail *DBLogger, retentionDays int, logger *observability.Logger) *RetentionJob {
	return &RetentionJob{
		logger:        logger,
		trail:         trail,
		retentionDays: retentionDays,
	}
}

// Start schedules the job with a standard 5-field cron expression.
func (j *RetentionJob) Start(schedule string) error {
	if j.retentionDays <= 0 {
		j.logger.Info("audit retention disabled, keeping entries forever")
		return nil
	}

	j.cron = cron.New()
	_, err := j.cron.AddFunc(schedule, j.run)
	if err != nil {
		return fmt.Errorf("invalid retention schedule %q: %w", schedule, err)
	}
	j.cron.Start()

	j.logger.WithFields(map[string]interface{}{
		"schedule":       schedule,
		"retention_days": j.retentionDays,
	}).Info("audit retention job scheduled")
	return nil
}

// Stop halts the scheduler and waits for a running prune to finish.
func (j *RetentionJob) Stop() {
	if j.cron != nil {
		<-j.cron.Stop().Done()
	}
}

func (j *RetentionJob) run() {
	removed, err := j.trail.Cleanup(context.Background(), j.retentionDays)
	if err != nil {
		j.logger.WithError(err).Error("audit retention prune failed")
		return
	}
	j.logger.WithField("removed", removed).Info("audit retention prune completed")
}
