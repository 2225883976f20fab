package scheduler

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// RunPruner deletes stored runs created before a cutoff.
type RunPruner interface {
	Delete(before time.Time) (int64, error)
}

// CleanupRunsJob removes stored runs older than the retention period.
type CleanupRunsJob struct {
	log       zerolog.Logger
	runs      RunPruner
	retention time.Duration
	now       func() time.Time
}

// NewCleanupRunsJob creates a new CleanupRunsJob. A retention of zero days
// disables cleanup.
func NewCleanupRunsJob(runs RunPruner, retentionDays int) *CleanupRunsJob {
	return &CleanupRunsJob{
		log:       zerolog.Nop(),
		runs:      runs,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		now:       time.Now,
	}
}

// SetLogger sets the logger for the job
func (j *CleanupRunsJob) SetLogger(log zerolog.Logger) {
	j.log = log.With().Str("job", j.Name()).Logger()
}

// Name returns the job name
func (j *CleanupRunsJob) Name() string {
	return "cleanup_runs"
}

// Run executes the cleanup
func (j *CleanupRunsJob) Run() error {
	if j.retention <= 0 {
		return nil
	}

	cutoff := j.now().Add(-j.retention)
	deleted, err := j.runs.Delete(cutoff)
	if err != nil {
		return fmt.Errorf("failed to delete runs before %s: %w", cutoff.Format(time.RFC3339), err)
	}

	if deleted > 0 {
		j.log.Info().
			Int64("deleted", deleted).
			Time("cutoff", cutoff).
			Msg("Old runs removed")
	}
	return nil
}
