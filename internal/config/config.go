// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/aristath/frontier/internal/utils"
)

// Supported price data sources
const (
	DataSourceYahoo = "yahoo"
	DataSourceCSV   = "csv"
)

// Config holds application configuration
type Config struct {
	DataDir         string // Base directory for all databases (defaults to "./data", always absolute)
	LogLevel        string
	Port            int
	DevMode         bool
	DataSource      string // yahoo or csv
	PricesCSVPath   string
	Tickers         []string // Refreshed by the scheduler
	RefreshSchedule string   // Cron spec with seconds
	RunsRetention   int      // Days; 0 keeps runs forever

	BackupEnabled   bool
	BackupRetention int // Days; 0 keeps every archive
	BackupS3        BackupS3Config

	RiskFreeRate           float64
	TradingDaysPerYear     int
	LookbackWindowDays     int
	RebalanceFrequencyDays int
	Seed                   uint64
	Simulations            int
	HorizonDays            int
	FrontierPoints         int
}

// BackupS3Config selects an S3 compatible bucket for off-site backups.
// An empty bucket keeps archives in DataDir/backups.
type BackupS3Config struct {
	Bucket          string
	Region          string
	Endpoint        string // e.g. a Cloudflare R2 account endpoint
	AccessKeyID     string
	SecretAccessKey string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	absDataDir, err := filepath.Abs(getEnv("FRONTIER_DATA_DIR", "./data"))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:         absDataDir,
		Port:            getEnvAsInt("FRONTIER_PORT", 8080),
		DevMode:         getEnvAsBool("DEV_MODE", false),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		DataSource:      getEnv("FRONTIER_DATA_SOURCE", DataSourceYahoo),
		PricesCSVPath:   getEnv("FRONTIER_PRICES_CSV", ""),
		Tickers:         utils.ParseTickers(getEnv("FRONTIER_TICKERS", "")),
		RefreshSchedule: getEnv("FRONTIER_REFRESH_SCHEDULE", "0 30 22 * * MON-FRI"), // after US close
		RunsRetention:   getEnvAsInt("RUNS_RETENTION_DAYS", 90),

		BackupEnabled:   getEnvAsBool("BACKUP_ENABLED", true),
		BackupRetention: getEnvAsInt("BACKUP_RETENTION_DAYS", 30),
		BackupS3: BackupS3Config{
			Bucket:          getEnv("BACKUP_S3_BUCKET", ""),
			Region:          getEnv("BACKUP_S3_REGION", "auto"),
			Endpoint:        getEnv("BACKUP_S3_ENDPOINT", ""),
			AccessKeyID:     getEnv("BACKUP_S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("BACKUP_S3_SECRET_ACCESS_KEY", ""),
		},

		RiskFreeRate:           getEnvAsFloat("RISK_FREE_RATE", 0.02),
		TradingDaysPerYear:     getEnvAsInt("TRADING_DAYS_PER_YEAR", 252),
		LookbackWindowDays:     getEnvAsInt("LOOKBACK_WINDOW_DAYS", 252),
		RebalanceFrequencyDays: getEnvAsInt("REBALANCE_FREQUENCY_DAYS", 21),
		Seed:                   uint64(getEnvAsInt("SIMULATION_SEED", 42)),
		Simulations:            getEnvAsInt("SIMULATION_COUNT", 10000),
		HorizonDays:            getEnvAsInt("SIMULATION_HORIZON_DAYS", 252),
		FrontierPoints:         getEnvAsInt("FRONTIER_POINTS", 50),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	positive := []struct {
		name  string
		value int
	}{
		{"TRADING_DAYS_PER_YEAR", c.TradingDaysPerYear},
		{"LOOKBACK_WINDOW_DAYS", c.LookbackWindowDays},
		{"REBALANCE_FREQUENCY_DAYS", c.RebalanceFrequencyDays},
		{"SIMULATION_COUNT", c.Simulations},
		{"SIMULATION_HORIZON_DAYS", c.HorizonDays},
		{"FRONTIER_POINTS", c.FrontierPoints},
	}
	for _, p := range positive {
		if p.value <= 0 {
			return fmt.Errorf("%s must be positive, got %d", p.name, p.value)
		}
	}

	if c.RunsRetention < 0 {
		return fmt.Errorf("RUNS_RETENTION_DAYS must not be negative, got %d", c.RunsRetention)
	}

	if c.BackupRetention < 0 {
		return fmt.Errorf("BACKUP_RETENTION_DAYS must not be negative, got %d", c.BackupRetention)
	}
	if c.BackupS3.AccessKeyID != "" && c.BackupS3.SecretAccessKey == "" {
		return fmt.Errorf("BACKUP_S3_SECRET_ACCESS_KEY is required with BACKUP_S3_ACCESS_KEY_ID")
	}

	switch c.DataSource {
	case DataSourceYahoo:
	case DataSourceCSV:
		if c.PricesCSVPath == "" {
			return fmt.Errorf("FRONTIER_PRICES_CSV is required when FRONTIER_DATA_SOURCE=csv")
		}
	default:
		return fmt.Errorf("unknown FRONTIER_DATA_SOURCE %q (want %s or %s)", c.DataSource, DataSourceYahoo, DataSourceCSV)
	}

	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
