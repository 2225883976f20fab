package di

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/frontier/internal/config"
	"github.com/aristath/frontier/internal/scheduler"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		DataDir:                dir,
		DataSource:             config.DataSourceCSV,
		PricesCSVPath:          filepath.Join(dir, "prices.csv"),
		RefreshSchedule:        "0 30 22 * * MON-FRI",
		RunsRetention:          30,
		RiskFreeRate:           0.03,
		TradingDaysPerYear:     252,
		LookbackWindowDays:     63,
		RebalanceFrequencyDays: 5,
		Seed:                   7,
		Simulations:            200,
		HorizonDays:            21,
		FrontierPoints:         10,
	}
}

func TestWire(t *testing.T) {
	cfg := testConfig(t)
	cfg.Tickers = []string{"SPY", "AGG"}
	sched := scheduler.New(zerolog.Nop())

	container, jobs, err := Wire(cfg, sched, zerolog.Nop())
	require.NoError(t, err)
	require.NotNil(t, container)
	require.NotNil(t, jobs)
	t.Cleanup(container.Close)

	assert.NotNil(t, container.PricesDB)
	assert.NotNil(t, container.RunRepo)
	assert.NotNil(t, container.PriceService)

	assert.NotNil(t, container.BackupService)
	require.Same(t, sched, jobs.Scheduler)
	schedules := make(map[string]string)
	for _, st := range sched.Jobs() {
		schedules[st.Name] = st.Schedule
	}
	assert.Equal(t, map[string]string{
		"backup_databases":      "",
		"check_wal_checkpoints": "0 0 * * * *",
		"cleanup_runs":          "0 15 3 * * *",
		"database_maintenance":  "0 0 4 * * SUN",
		"refresh_prices":        "0 30 22 * * MON-FRI",
	}, schedules, "backups are disabled in the test config so that job is manual only")
}

func TestWire_InvalidSchedule(t *testing.T) {
	cfg := testConfig(t)
	cfg.Tickers = []string{"SPY"}
	cfg.RefreshSchedule = "whenever"

	_, _, err := Wire(cfg, scheduler.New(zerolog.Nop()), zerolog.Nop())
	assert.ErrorContains(t, err, "refresh_prices")
}

func TestRegisterJobs_WithoutScheduler(t *testing.T) {
	cfg := testConfig(t)
	container, err := InitializeDatabases(cfg, zerolog.Nop())
	require.NoError(t, err)
	defer container.Close()
	require.NoError(t, InitializeServices(container, cfg, zerolog.Nop()))

	jobs, err := RegisterJobs(container, cfg, nil, zerolog.Nop())
	require.NoError(t, err)
	require.NotNil(t, jobs.Scheduler)
	assert.Len(t, jobs.Scheduler.Jobs(), 5)
	assert.NoError(t, jobs.Scheduler.RunNow("check_wal_checkpoints"))
	assert.Equal(t, 1, jobs.Scheduler.Jobs()[1].Runs)
	assert.NoError(t, jobs.CleanupRuns.Run())
	assert.NoError(t, jobs.RefreshPrices.Run(), "no tickers configured")
	assert.NoError(t, jobs.Maintenance.Run())
	require.NoError(t, jobs.Backup.Run())
	assert.FileExists(t, filepath.Join(cfg.DataDir, "backups", mustSingleArchive(t, filepath.Join(cfg.DataDir, "backups"))))

	_, err = RegisterJobs(nil, cfg, nil, zerolog.Nop())
	assert.Error(t, err)
}

func mustSingleArchive(t *testing.T, dir string) string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	return entries[0].Name()
}
