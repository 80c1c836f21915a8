// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir            string // Base directory for all databases (always absolute)
	FeedURL            string // Broker gateway WebSocket URL
	FeedSID            string // Optional broker session ID
	LogLevel           string
	Port               int
	DevMode            bool
	RiskFreeRate       float64 // Annualized risk-free rate used by the IV solver
	TradingDaysPerYear int     // Annualization factor for realized volatility
	RVWindowDays       int     // Historical window for realized volatility
	HedgeIntervalSecs  int     // Seconds between hedge cycles
	VolRefreshMins     int     // Minutes between volatility refreshes
	Backup             *BackupConfig
}

// BackupConfig holds cloud backup configuration for the S3-compatible
// object store. Backups are disabled when the bucket is empty.
type BackupConfig struct {
	Enabled       bool
	Endpoint      string // Custom endpoint for S3-compatible stores (empty for AWS)
	Region        string
	Bucket        string
	AccessKey     string
	SecretKey     string
	RetentionDays int
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	// Determine data directory with fallback logic:
	// 1. Check HEDGER_DATA_DIR environment variable
	// 2. If not set, default to ./data
	// 3. Always resolve to absolute path and ensure it exists
	dataDir := getEnv("HEDGER_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "./data"
	}

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:            absDataDir,
		Port:               getEnvAsInt("PORT", 8001),
		DevMode:            getEnvAsBool("DEV_MODE", false),
		FeedURL:            getEnv("FEED_URL", "ws://127.0.0.1:7497/ws"),
		FeedSID:            getEnv("FEED_SID", ""),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		RiskFreeRate:       getEnvAsFloat("RISK_FREE_RATE", 0.05),
		TradingDaysPerYear: getEnvAsInt("TRADING_DAYS_PER_YEAR", 252),
		RVWindowDays:       getEnvAsInt("RV_WINDOW_DAYS", 30),
		HedgeIntervalSecs:  getEnvAsInt("HEDGE_INTERVAL_SECS", 5),
		VolRefreshMins:     getEnvAsInt("VOL_REFRESH_MINS", 5),
		Backup:             loadBackupConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.RiskFreeRate < 0 || c.RiskFreeRate > 1 {
		return fmt.Errorf("risk-free rate must be in [0, 1], got %f", c.RiskFreeRate)
	}
	if c.TradingDaysPerYear <= 0 {
		return fmt.Errorf("trading days per year must be positive, got %d", c.TradingDaysPerYear)
	}
	if c.HedgeIntervalSecs <= 0 {
		return fmt.Errorf("hedge interval must be positive, got %d", c.HedgeIntervalSecs)
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

// loadBackupConfig loads cloud backup configuration from environment
func loadBackupConfig() *BackupConfig {
	bucket := getEnv("BACKUP_S3_BUCKET", "")
	return &BackupConfig{
		Enabled:       bucket != "",
		Endpoint:      getEnv("BACKUP_S3_ENDPOINT", ""),
		Region:        getEnv("BACKUP_S3_REGION", "auto"),
		Bucket:        bucket,
		AccessKey:     getEnv("BACKUP_S3_ACCESS_KEY", ""),
		SecretKey:     getEnv("BACKUP_S3_SECRET_KEY", ""),
		RetentionDays: getEnvAsInt("BACKUP_RETENTION_DAYS", 30),
	}
}
