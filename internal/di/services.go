// Package di provides dependency injection for services.
package di

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/frontier/internal/clients/csvprices"
	"github.com/aristath/frontier/internal/clients/yahoo"
	"github.com/aristath/frontier/internal/config"
	"github.com/aristath/frontier/internal/domain"
	"github.com/aristath/frontier/internal/modules/backtest"
	"github.com/aristath/frontier/internal/modules/charts"
	"github.com/aristath/frontier/internal/modules/optimization"
	"github.com/aristath/frontier/internal/modules/prices"
	"github.com/aristath/frontier/internal/modules/runs"
	"github.com/aristath/frontier/internal/modules/simulation"
	"github.com/aristath/frontier/internal/reliability"
)

// NewPriceSource builds the configured market data source.
func NewPriceSource(cfg *config.Config, log zerolog.Logger) (domain.PriceSource, error) {
	switch cfg.DataSource {
	case config.DataSourceYahoo, "":
		return yahoo.NewClient(log), nil
	case config.DataSourceCSV:
		if cfg.PricesCSVPath == "" {
			return nil, fmt.Errorf("%w: csv data source without a file", domain.ErrMissingDependency)
		}
		return csvprices.NewSource(cfg.PricesCSVPath, log), nil
	default:
		return nil, fmt.Errorf("%w: unknown data source %q", domain.ErrMissingDependency, cfg.DataSource)
	}
}

// NewBackupStore builds the off-site store when a bucket is configured and a
// local directory under DataDir otherwise.
func NewBackupStore(ctx context.Context, cfg *config.Config) (reliability.Store, error) {
	if cfg.BackupS3.Bucket == "" {
		return reliability.NewLocalStore(filepath.Join(cfg.DataDir, "backups"))
	}
	return reliability.NewS3Store(ctx, reliability.S3Config{
		Bucket:          cfg.BackupS3.Bucket,
		Region:          cfg.BackupS3.Region,
		Endpoint:        cfg.BackupS3.Endpoint,
		AccessKeyID:     cfg.BackupS3.AccessKeyID,
		SecretAccessKey: cfg.BackupS3.SecretAccessKey,
	})
}

// InitializeServices creates repositories and services on top of the
// container's databases
func InitializeServices(container *Container, cfg *config.Config, log zerolog.Logger) error {
	if container == nil || container.PricesDB == nil || container.RunsDB == nil {
		return fmt.Errorf("container databases not initialized")
	}

	// A missing source leaves the service up; requests that need data fail
	// with ErrMissingDependency.
	source, err := NewPriceSource(cfg, log)
	if err != nil {
		log.Warn().Err(err).Msg("No price data source available")
	} else {
		container.PriceSource = source
		container.PriceSourceName = cfg.DataSource
	}

	container.PriceRepo = prices.NewRepository(container.PricesDB.Conn(), log)
	container.RunRepo = runs.NewRepository(container.RunsDB.Conn(), log)

	container.PriceService = prices.NewService(container.PriceSource, container.PriceSourceName, container.PriceRepo, log)
	container.RiskBuilder = optimization.NewRiskModelBuilder(nil, cfg.TradingDaysPerYear, log)
	container.Optimizer = optimization.NewMVOptimizer(log)
	container.Backtester = backtest.NewBacktester(nil, log)
	container.Simulator = simulation.NewSimulator(log)
	container.ChartsService = charts.NewService(container.PriceService, container.RiskBuilder, container.Optimizer, log)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	store, err := NewBackupStore(ctx, cfg)
	if err != nil && cfg.BackupS3.Bucket != "" {
		log.Warn().Err(err).Str("bucket", cfg.BackupS3.Bucket).Msg("Off-site backup store unavailable, backing up locally")
		store, err = reliability.NewLocalStore(filepath.Join(cfg.DataDir, "backups"))
	}
	if err != nil {
		return fmt.Errorf("failed to create backup store: %w", err)
	}
	// The price cache can be re-fetched, only stored runs are backed up
	container.BackupService = reliability.NewBackupService(store, filepath.Join(cfg.DataDir, "backup-staging"), log, container.RunsDB)

	seed := cfg.Seed
	container.BacktestParams = backtest.Params{
		LookbackWindowDays:     cfg.LookbackWindowDays,
		RebalanceFrequencyDays: cfg.RebalanceFrequencyDays,
		RiskFreeRate:           cfg.RiskFreeRate,
		TradingDaysPerYear:     cfg.TradingDaysPerYear,
	}
	container.SimulationOptions = simulation.Options{
		Simulations: cfg.Simulations,
		HorizonDays: cfg.HorizonDays,
		Seed:        &seed,
	}
	container.RiskFreeRate = cfg.RiskFreeRate
	container.FrontierPoints = cfg.FrontierPoints

	log.Info().
		Str("data_source", container.PriceSourceName).
		Int("trading_days", cfg.TradingDaysPerYear).
		Msg("Services initialized")

	return nil
}
