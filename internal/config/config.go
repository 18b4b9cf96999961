// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/aristath/greenfin/internal/modules/scoring"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration
type Config struct {
	DataDir          string // Base directory for databases (always absolute)
	RawDataDir       string // Raw CSV inputs
	CleanedDataDir   string // portfolio_clean.csv
	ReportDir        string // Markdown report and chart series
	LogLevel         string
	LogPretty        bool
	Port             int
	PipelineSchedule string // Cron expression with seconds; empty disables scheduling
	RiskFreeRate     float64
	TradingDays      int
	SimulationSeed   uint64
	RunRetention     int // Runs kept by the maintenance job
	Publishing       *PublishingConfig
	Pipeline         *PipelineConfig
}

// PublishingConfig holds S3-compatible report upload settings
type PublishingConfig struct {
	Bucket          string
	Prefix          string
	Endpoint        string // Custom endpoint for S3-compatible stores (empty = AWS)
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

// Enabled reports whether report publishing is configured
func (p *PublishingConfig) Enabled() bool {
	return p != nil && p.Bucket != ""
}

// PipelineConfig is the optional YAML file overriding scoring parameters
type PipelineConfig struct {
	Weights    scoring.Weights    `yaml:"weights"`
	Thresholds scoring.Thresholds `yaml:"thresholds"`
	// SimulationDays overrides the synthetic return horizon when positive
	SimulationDays int `yaml:"simulation_days"`
}

// DefaultPipelineConfig returns the standard weights and tier thresholds
func DefaultPipelineConfig() *PipelineConfig {
	return &PipelineConfig{
		Weights:    scoring.DefaultWeights(),
		Thresholds: scoring.DefaultThresholds(),
	}
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir, err := resolveDir(getEnv("GREENFIN_DATA_DIR", "data"))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory: %w", err)
	}
	rawDir, err := resolveDir(getEnv("RAW_DATA_DIR", filepath.Join(dataDir, "raw")))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve raw data directory: %w", err)
	}
	cleanedDir, err := resolveDir(getEnv("CLEANED_DATA_DIR", filepath.Join(dataDir, "cleaned")))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve cleaned data directory: %w", err)
	}
	reportDir, err := resolveDir(getEnv("REPORT_DIR", filepath.Join(dataDir, "reports")))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve report directory: %w", err)
	}

	pipeline := DefaultPipelineConfig()
	if path := getEnv("PIPELINE_CONFIG", ""); path != "" {
		pipeline, err = LoadPipelineConfig(path)
		if err != nil {
			return nil, err
		}
	}

	cfg := &Config{
		DataDir:          dataDir,
		RawDataDir:       rawDir,
		CleanedDataDir:   cleanedDir,
		ReportDir:        reportDir,
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		LogPretty:        getEnvAsBool("LOG_PRETTY", false),
		Port:             getEnvAsInt("GO_PORT", 8001),
		PipelineSchedule: getEnv("PIPELINE_SCHEDULE", ""),
		RiskFreeRate:     getEnvAsFloat("RISK_FREE_RATE", 0.03),
		TradingDays:      getEnvAsInt("TRADING_DAYS", 252),
		SimulationSeed:   uint64(getEnvAsInt("SIMULATION_SEED", 42)),
		RunRetention:     getEnvAsInt("RUN_RETENTION", 100),
		Publishing: &PublishingConfig{
			Bucket:          getEnv("REPORT_BUCKET", ""),
			Prefix:          getEnv("REPORT_PREFIX", "greenfin"),
			Endpoint:        getEnv("S3_ENDPOINT", ""),
			Region:          getEnv("S3_REGION", "auto"),
			AccessKeyID:     getEnv("S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("S3_SECRET_ACCESS_KEY", ""),
		},
		Pipeline: pipeline,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadPipelineConfig reads a YAML pipeline file. Sections left out keep their defaults.
func LoadPipelineConfig(path string) (*PipelineConfig, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pipeline config %s: %w", path, err)
	}

	pipeline := DefaultPipelineConfig()
	if err := yaml.Unmarshal(content, pipeline); err != nil {
		return nil, fmt.Errorf("failed to parse pipeline config %s: %w", path, err)
	}
	return pipeline, nil
}

// Validate checks value ranges
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.TradingDays <= 0 {
		return fmt.Errorf("trading days must be positive, got %d", c.TradingDays)
	}
	if c.RiskFreeRate < 0 || c.RiskFreeRate >= 1 {
		return fmt.Errorf("risk-free rate must be in [0, 1), got %g", c.RiskFreeRate)
	}
	if c.RunRetention < 1 {
		return fmt.Errorf("run retention must be at least 1, got %d", c.RunRetention)
	}
	if c.Pipeline != nil {
		if err := c.Pipeline.Weights.Validate(); err != nil {
			return fmt.Errorf("invalid scoring weights: %w", err)
		}
		if err := c.Pipeline.Thresholds.Validate(); err != nil {
			return fmt.Errorf("invalid tier thresholds: %w", err)
		}
		if c.Pipeline.SimulationDays < 0 {
			return fmt.Errorf("simulation days must not be negative, got %d", c.Pipeline.SimulationDays)
		}
	}
	if c.Publishing.Enabled() && c.Publishing.Endpoint != "" &&
		(c.Publishing.AccessKeyID == "" || c.Publishing.SecretAccessKey == "") {
		return fmt.Errorf("custom S3 endpoint requires S3_ACCESS_KEY_ID and S3_SECRET_ACCESS_KEY")
	}
	return nil
}

// StagingDBPath is the SQLite file holding raw and cleaned tables
func (c *Config) StagingDBPath() string {
	return filepath.Join(c.DataDir, "staging.db")
}

// AnalyticsDBPath is the SQLite file holding the run history
func (c *Config) AnalyticsDBPath() string {
	return filepath.Join(c.DataDir, "analytics.db")
}

// resolveDir makes dir absolute and ensures it exists
func resolveDir(dir string) (string, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(absDir, 0755); err != nil {
		return "", err
	}
	return absDir, nil
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

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
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
