/**
 * Package di provides dependency injection type definitions.
 *
 * The Container holds every long-lived dependency of the service and is
 * passed to the HTTP server and the scheduler.
 */
package di

import (
	"github.com/aristath/frontier/internal/database"
	"github.com/aristath/frontier/internal/domain"
	"github.com/aristath/frontier/internal/modules/backtest"
	"github.com/aristath/frontier/internal/modules/charts"
	"github.com/aristath/frontier/internal/modules/optimization"
	"github.com/aristath/frontier/internal/modules/prices"
	"github.com/aristath/frontier/internal/modules/runs"
	"github.com/aristath/frontier/internal/modules/simulation"
	"github.com/aristath/frontier/internal/reliability"
	"github.com/aristath/frontier/internal/scheduler"
)

// Container holds all dependencies for the application.
//
// Databases:
//   - prices.db: re-fetchable price cache (ProfileCache)
//   - runs.db: stored results (ProfileStandard)
type Container struct {
	// Databases
	PricesDB *database.DB
	RunsDB   *database.DB

	// Data source (nil when none could be configured)
	PriceSource     domain.PriceSource
	PriceSourceName string

	// Repositories
	PriceRepo *prices.Repository
	RunRepo   *runs.Repository

	// Services
	PriceService  *prices.Service
	RiskBuilder   *optimization.RiskModelBuilder
	Optimizer     *optimization.MVOptimizer
	Backtester    *backtest.Backtester
	Simulator     *simulation.Simulator
	ChartsService *charts.Service
	BackupService *reliability.BackupService

	// Defaults from configuration
	BacktestParams    backtest.Params
	SimulationOptions simulation.Options
	RiskFreeRate      float64
	FrontierPoints    int
}

// Close closes all databases
func (c *Container) Close() {
	if c.PricesDB != nil {
		_ = c.PricesDB.Close()
	}
	if c.RunsDB != nil {
		_ = c.RunsDB.Close()
	}
}

// JobInstances holds references to the background jobs and the scheduler
// that owns their registry
type JobInstances struct {
	RefreshPrices       scheduler.Job
	CheckWALCheckpoints scheduler.Job
	CleanupRuns         scheduler.Job
	Maintenance         scheduler.Job
	Backup              scheduler.Job

	Scheduler *scheduler.Scheduler
}

func (j *JobInstances) list() []scheduler.Job {
	var jobs []scheduler.Job
	for _, job := range []scheduler.Job{j.RefreshPrices, j.CheckWALCheckpoints, j.CleanupRuns, j.Maintenance, j.Backup} {
		if job != nil {
			jobs = append(jobs, job)
		}
	}
	return jobs
}
