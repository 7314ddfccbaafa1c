package app

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"cryptoRateWatch/internal/ports"
)

// DefaultRetentionSchedule runs the prune once a day at midnight.
const DefaultRetentionSchedule = "@daily"

// RetentionJob prunes rate samples older than the retention period on a cron schedule.
// Samples inside ChangeWindow are never pruned, so baselines stay intact.
type RetentionJob struct {
	logger    ports.Logger
	history   ports.RateHistoryStore
	retention time.Duration
	now       func() time.Time
	cron      *cron.Cron
}

// NewRetentionJob creates a job. retention must be positive; values shorter than ChangeWindow
// are raised to ChangeWindow.
func NewRetentionJob(logger ports.Logger, history ports.RateHistoryStore, retention time.Duration, now func() time.Time) (*RetentionJob, error) {
	if logger == nil || history == nil {
		return nil, fmt.Errorf("missing required dependencies for RetentionJob")
	}
	if retention <= 0 {
		return nil, fmt.Errorf("retention must be positive: %w", ports.ErrConfigurationError)
	}
	if retention < ChangeWindow {
		retention = ChangeWindow
	}
	if now == nil {
		now = time.Now
	}
	return &RetentionJob{
		logger:    logger,
		history:   history,
		retention: retention,
		now:       now,
		cron:      cron.New(),
	}, nil
}

// Name identifies the job in logs.
func (j *RetentionJob) Name() string {
	return "rate-retention"
}

// Run prunes once and returns the number of deleted samples.
func (j *RetentionJob) Run(ctx context.Context) (int64, error) {
	cutoff := j.now().UTC().Add(-j.retention)
	deleted, err := j.history.PruneBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("%s: prune before %s: %w", j.Name(), cutoff.Format(time.RFC3339), err)
	}
	j.logger.Info(ctx, "Rate history pruned", map[string]interface{}{"cutoff": cutoff, "deleted": deleted})
	return deleted, nil
}

// Start registers the job on schedule (standard cron syntax or descriptors such as "@daily")
// and starts the cron runner.
func (j *RetentionJob) Start(ctx context.Context, schedule string) error {
	if schedule == "" {
		schedule = DefaultRetentionSchedule
	}
	_, err := j.cron.AddFunc(schedule, func() {
		if _, err := j.Run(ctx); err != nil {
			j.logger.Error(ctx, err, "Retention job failed", map[string]interface{}{"job": j.Name()})
		}
	})
	if err != nil {
		return fmt.Errorf("invalid retention schedule %q: %w: %w", schedule, ports.ErrConfigurationError, err)
	}
	j.cron.Start()
	j.logger.Info(ctx, "Retention job registered", map[string]interface{}{"schedule": schedule, "retention": j.retention})
	return nil
}

// Stop stops the cron runner and waits for a running prune to finish.
func (j *RetentionJob) Stop() {
	<-j.cron.Stop().Done()
}
