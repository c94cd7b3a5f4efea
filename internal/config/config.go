// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/aristath/indextracker/internal/domain"
	"github.com/aristath/indextracker/internal/modules/rebalancing"
	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir   string // Base directory for all databases (always absolute)
	LogLevel  string
	Port      int
	DevMode   bool
	Rebalance RebalanceConfig
	Paper     PaperConfig
}

// RebalanceConfig holds the rebalancing tunables
type RebalanceConfig struct {
	Delta         float64
	Commission    float64
	MinLotsToKeep int64
	MaxIterations int
	MaxCash       float64 // Accounts with this much free cash or less are left alone
	Index         string  // Default index to track
}

// PaperConfig holds the simulated broker settings
type PaperConfig struct {
	AccountID   string
	InitialCash float64
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("TRADER_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "data"
	}

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:  absDataDir,
		Port:     getEnvAsInt("GO_PORT", 8001),
		DevMode:  getEnvAsBool("DEV_MODE", false),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Rebalance: RebalanceConfig{
			Delta:         getEnvAsFloat("REBALANCE_DELTA", rebalancing.DefaultDelta),
			Commission:    getEnvAsFloat("REBALANCE_COMMISSION", rebalancing.DefaultCommission),
			MinLotsToKeep: int64(getEnvAsInt("REBALANCE_MIN_LOTS_TO_KEEP", rebalancing.DefaultMinLotsToKeep)),
			MaxIterations: getEnvAsInt("REBALANCE_MAX_ITERATIONS", rebalancing.DefaultMaxIterations),
			MaxCash:       getEnvAsFloat("REBALANCE_MAX_CASH", 0),
			Index:         strings.ToUpper(getEnv("REBALANCE_INDEX", "IMOEX")),
		},
		Paper: PaperConfig{
			AccountID:   getEnv("PAPER_ACCOUNT_ID", "paper"),
			InitialCash: getEnvAsFloat("PAPER_INITIAL_CASH", 1_000_000),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Engine returns the engine tunables
func (c *Config) Engine() rebalancing.EngineConfig {
	return rebalancing.EngineConfig{
		Delta:         c.Rebalance.Delta,
		Commission:    c.Rebalance.Commission,
		MinLotsToKeep: c.Rebalance.MinLotsToKeep,
		MaxIterations: c.Rebalance.MaxIterations,
	}
}

// Validate checks the configuration. Every failure wraps domain.ErrConfiguration.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", domain.ErrConfiguration, c.Port)
	}
	if err := c.Engine().Validate(); err != nil {
		return err
	}
	if c.Rebalance.MaxCash < 0 {
		return fmt.Errorf("%w: max cash %.2f must not be negative", domain.ErrConfiguration, c.Rebalance.MaxCash)
	}
	if c.Paper.InitialCash < 0 {
		return fmt.Errorf("%w: paper initial cash %.2f must not be negative", domain.ErrConfiguration, c.Paper.InitialCash)
	}
	if strings.TrimSpace(c.Paper.AccountID) == "" {
		return fmt.Errorf("%w: paper account id is required", domain.ErrConfiguration)
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
