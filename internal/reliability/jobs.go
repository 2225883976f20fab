package reliability

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/disk"

	"github.com/aristath/frontier/internal/database"
)

// DefaultMinFreeBytes is the free space below which maintenance fails.
const DefaultMinFreeBytes = 500 * 1024 * 1024

// MaintenanceJob checks integrity, vacuums every database and verifies the
// data directory has room to grow.
type MaintenanceJob struct {
	databases    []*database.DB
	dataDir      string
	minFreeBytes uint64
	timeout      time.Duration
	log          zerolog.Logger
}

// NewMaintenanceJob creates a maintenance job over the given databases.
func NewMaintenanceJob(dataDir string, databases ...*database.DB) *MaintenanceJob {
	return &MaintenanceJob{
		databases:    databases,
		dataDir:      dataDir,
		minFreeBytes: DefaultMinFreeBytes,
		timeout:      30 * time.Minute,
		log:          zerolog.Nop(),
	}
}

// SetLogger sets the logger for the job
func (j *MaintenanceJob) SetLogger(log zerolog.Logger) {
	j.log = log.With().Str("job", j.Name()).Logger()
}

// Name returns the job name
func (j *MaintenanceJob) Name() string {
	return "database_maintenance"
}

// Run executes the maintenance. A failed integrity check stops the run;
// a failed VACUUM is logged and the next database is tried.
func (j *MaintenanceJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()
	startTime := time.Now()

	for _, db := range j.databases {
		if err := db.IntegrityCheck(ctx); err != nil {
			j.log.Error().Err(err).Str("database", db.Name()).Msg("Integrity check failed")
			return err
		}
	}

	for _, db := range j.databases {
		before, _ := db.GetStats()
		if err := db.Vacuum(ctx); err != nil {
			j.log.Error().Err(err).Str("database", db.Name()).Msg("VACUUM failed")
			continue
		}
		after, err := db.GetStats()
		if err != nil || before == nil {
			continue
		}
		j.log.Info().
			Str("database", db.Name()).
			Int64("pages_before", before.PageCount).
			Int64("pages_after", after.PageCount).
			Msg("VACUUM completed")
	}

	if err := j.checkDiskSpace(); err != nil {
		return err
	}

	j.log.Info().Dur("duration_ms", time.Since(startTime)).Msg("Maintenance completed")
	return nil
}

func (j *MaintenanceJob) checkDiskSpace() error {
	usage, err := disk.Usage(j.dataDir)
	if err != nil {
		return fmt.Errorf("failed to stat filesystem: %w", err)
	}

	if usage.Free < j.minFreeBytes {
		j.log.Error().Uint64("free_bytes", usage.Free).Msg("Insufficient disk space")
		return fmt.Errorf("only %d bytes free in %s", usage.Free, j.dataDir)
	}
	if usage.UsedPercent > 90 {
		j.log.Warn().Float64("used_percent", usage.UsedPercent).Msg("Disk space running low")
	}
	return nil
}

// BackupJob uploads a fresh archive and rotates old ones.
type BackupJob struct {
	service       *BackupService
	retentionDays int
	timeout       time.Duration
	log           zerolog.Logger
}

// NewBackupJob creates a backup job. A retention of zero keeps every archive.
func NewBackupJob(service *BackupService, retentionDays int) *BackupJob {
	return &BackupJob{
		service:       service,
		retentionDays: retentionDays,
		timeout:       30 * time.Minute,
		log:           zerolog.Nop(),
	}
}

// SetLogger sets the logger for the job
func (j *BackupJob) SetLogger(log zerolog.Logger) {
	j.log = log.With().Str("job", j.Name()).Logger()
}

// Name returns the job name
func (j *BackupJob) Name() string {
	return "backup_databases"
}

// Run executes the backup
func (j *BackupJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	if _, err := j.service.CreateAndUpload(ctx); err != nil {
		return fmt.Errorf("backup failed: %w", err)
	}

	// Rotation failures leave extra archives behind, the backup itself succeeded
	if _, err := j.service.RotateOldBackups(ctx, j.retentionDays); err != nil {
		j.log.Warn().Err(err).Msg("Backup rotation failed")
	}
	return nil
}
