// Package di provides dependency injection for scheduler jobs.
package di

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/frontier/internal/config"
	"github.com/aristath/frontier/internal/reliability"
	"github.com/aristath/frontier/internal/scheduler"
)

// Maintenance schedules (cron with seconds)
const (
	walCheckpointSchedule = "0 0 * * * *"  // hourly
	cleanupRunsSchedule   = "0 15 3 * * *" // daily at 03:15
	backupSchedule        = "0 0 2 * * *"  // daily at 02:00
	maintenanceSchedule   = "0 0 4 * * SUN"
	refreshTimeout        = 10 * time.Minute
)

// RegisterJobs creates the background jobs and registers them with the
// scheduler. Disabled jobs are registered for manual runs only. A nil
// scheduler gets a private one that is never started.
func RegisterJobs(container *Container, cfg *config.Config, sched *scheduler.Scheduler, log zerolog.Logger) (*JobInstances, error) {
	if container == nil {
		return nil, fmt.Errorf("container cannot be nil")
	}

	instances := &JobInstances{}

	checkWAL := scheduler.NewCheckWALCheckpointsJob(container.PricesDB, container.RunsDB)
	checkWAL.SetLogger(log)
	instances.CheckWALCheckpoints = checkWAL

	cleanupRuns := scheduler.NewCleanupRunsJob(container.RunRepo, cfg.RunsRetention)
	cleanupRuns.SetLogger(log)
	instances.CleanupRuns = cleanupRuns

	refresh := scheduler.NewRefreshPricesJob(container.PriceService, cfg.Tickers, refreshTimeout)
	refresh.SetLogger(log)
	instances.RefreshPrices = refresh

	maintenance := reliability.NewMaintenanceJob(cfg.DataDir, container.PricesDB, container.RunsDB)
	maintenance.SetLogger(log)
	instances.Maintenance = maintenance

	if container.BackupService != nil {
		backup := reliability.NewBackupJob(container.BackupService, cfg.BackupRetention)
		backup.SetLogger(log)
		instances.Backup = backup
	}

	if sched == nil {
		// Without a running scheduler the jobs are still triggerable on demand.
		sched = scheduler.New(log)
		for _, job := range instances.list() {
			if err := sched.Register(job); err != nil {
				return nil, err
			}
		}
		instances.Scheduler = sched
		return instances, nil
	}
	instances.Scheduler = sched

	scheduled := []struct {
		schedule string
		job      scheduler.Job
		enabled  bool
	}{
		{walCheckpointSchedule, checkWAL, true},
		{cleanupRunsSchedule, cleanupRuns, cfg.RunsRetention > 0},
		{maintenanceSchedule, maintenance, true},
		{backupSchedule, instances.Backup, cfg.BackupEnabled && instances.Backup != nil},
		{cfg.RefreshSchedule, refresh, len(cfg.Tickers) > 0 && container.PriceSource != nil},
	}
	for _, s := range scheduled {
		if s.job == nil {
			continue
		}
		var err error
		if s.enabled {
			err = sched.AddJob(s.schedule, s.job)
		} else {
			err = sched.Register(s.job)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to register %s: %w", s.job.Name(), err)
		}
	}
	if len(cfg.Tickers) == 0 || container.PriceSource == nil {
		log.Info().Msg("Scheduled price refresh disabled (no tickers or data source)")
	}

	return instances, nil
}
