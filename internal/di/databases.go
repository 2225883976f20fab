// Package di provides dependency injection for database connections.
package di

import (
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/aristath/frontier/internal/config"
	"github.com/aristath/frontier/internal/database"
)

// InitializeDatabases opens both databases and applies their schemas
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{}

	// 1. prices.db - daily closes and per-symbol coverage, safe to lose
	pricesDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "prices.db"),
		Profile: database.ProfileCache,
		Name:    "prices",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize prices database: %w", err)
	}
	container.PricesDB = pricesDB

	// 2. runs.db - stored optimization, backtest and simulation results
	runsDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "runs.db"),
		Profile: database.ProfileStandard,
		Name:    "runs",
	})
	if err != nil {
		pricesDB.Close()
		return nil, fmt.Errorf("failed to initialize runs database: %w", err)
	}
	container.RunsDB = runsDB

	for _, db := range []*database.DB{pricesDB, runsDB} {
		if err := db.Migrate(); err != nil {
			container.Close()
			return nil, fmt.Errorf("failed to apply schema: %w", err)
		}
	}

	log.Info().
		Str("data_dir", cfg.DataDir).
		Msg("Databases initialized")

	return container, nil
}
