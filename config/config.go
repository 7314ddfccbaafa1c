package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"cryptoRateWatch/internal/adapters/logger" // Import the logger package for LogLevel
	"cryptoRateWatch/internal/eventbus"
)

// Config holds all application configuration.
type Config struct {
	// Binance API (public market data; keys are optional)
	APIKey     string
	SecretKey  string
	IsTestnet  bool
	Symbols    []string // Tracked symbols; empty tracks every symbol quoted in QuoteAsset
	QuoteAsset string

	// Change detection
	ThresholdPercent decimal.Decimal // Report moves strictly greater than this, in percent

	// Scheduler
	SchedulerEnabled  bool
	SchedulerInterval time.Duration

	// Event dispatch
	DispatchMode           eventbus.DispatchMode
	DispatchMaxConcurrency int // 0 means unbounded

	// Database
	DBPath string

	// Retention
	RateRetention     time.Duration // 0 keeps history forever
	RetentionSchedule string

	// Logging
	LogLevel  logger.LogLevel // Use the LogLevel type from the logger adapter
	LogPretty bool

	// HTTP API
	HTTPEnabled bool
	HTTPPort    int

	// Positions seed file, loaded at startup when present
	PositionsCSVPath string

	// Downstream forwarding (host:port); empty disables the stream sink
	SinkForwardAddr string
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string // Collect validation errors

	// Binance API
	cfg.APIKey = getEnv("BINANCE_API_KEY", "")
	cfg.SecretKey = getEnv("BINANCE_API_SECRET", "")
	cfg.IsTestnet = getEnvAsBool("IS_TESTNET", false)
	if (cfg.APIKey == "") != (cfg.SecretKey == "") {
		errs = append(errs, "BINANCE_API_KEY and BINANCE_API_SECRET must be set together")
	}

	cfg.Symbols = getEnvAsList("SYMBOLS")
	cfg.QuoteAsset = strings.ToUpper(getEnv("QUOTE_ASSET", "USDT"))
	if len(cfg.Symbols) == 0 && cfg.QuoteAsset == "" {
		errs = append(errs, "either SYMBOLS or QUOTE_ASSET must be set")
	}

	// Change detection
	cfg.ThresholdPercent, err = getEnvAsDecimalRequired("THRESHOLD_PERCENT", decimal.NewFromFloat(5.0))
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid THRESHOLD_PERCENT: %v", err))
	} else if cfg.ThresholdPercent.IsNegative() {
		errs = append(errs, "THRESHOLD_PERCENT cannot be negative")
	}

	// Scheduler
	cfg.SchedulerEnabled = getEnvAsBool("SCHEDULER_ENABLED", false)
	intervalMinutes, err := getEnvAsIntRequired("SCHEDULER_INTERVAL_MINUTES", 5)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid SCHEDULER_INTERVAL_MINUTES: %v", err))
	} else if intervalMinutes <= 0 {
		errs = append(errs, "SCHEDULER_INTERVAL_MINUTES must be positive")
	}
	cfg.SchedulerInterval = time.Duration(intervalMinutes) * time.Minute

	// Event dispatch
	cfg.DispatchMode, err = eventbus.ParseDispatchMode(getEnv("DISPATCH_MODE", "sequential"))
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid DISPATCH_MODE: %v", err))
	}
	cfg.DispatchMaxConcurrency, err = getEnvAsIntRequired("DISPATCH_MAX_CONCURRENCY", 0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid DISPATCH_MAX_CONCURRENCY: %v", err))
	} else if cfg.DispatchMaxConcurrency < 0 {
		errs = append(errs, "DISPATCH_MAX_CONCURRENCY cannot be negative")
	}

	// Database
	cfg.DBPath = getEnv("DB_PATH", "./data/rates.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}

	// Retention
	retentionDays, err := getEnvAsIntRequired("RATE_RETENTION_DAYS", 0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid RATE_RETENTION_DAYS: %v", err))
	} else if retentionDays < 0 {
		errs = append(errs, "RATE_RETENTION_DAYS cannot be negative")
	}
	cfg.RateRetention = time.Duration(retentionDays) * 24 * time.Hour
	cfg.RetentionSchedule = getEnv("RETENTION_SCHEDULE", "@daily")

	// Logging
	logLevelStr := getEnv("LOG_LEVEL", "INFO")
	cfg.LogLevel = logger.ParseLevel(logLevelStr) // Use the parser from the logger package
	cfg.LogPretty = getEnvAsBool("LOG_PRETTY", false)

	// HTTP API
	cfg.HTTPEnabled = getEnvAsBool("HTTP_ENABLED", true)
	cfg.HTTPPort, err = getEnvAsIntRequired("HTTP_PORT", 8080)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid HTTP_PORT: %v", err))
	} else if cfg.HTTPPort <= 0 || cfg.HTTPPort > 65535 {
		errs = append(errs, "HTTP_PORT must be between 1 and 65535")
	}

	cfg.PositionsCSVPath = getEnv("POSITIONS_CSV_PATH", "")
	cfg.SinkForwardAddr = getEnv("SINK_FORWARD_ADDR", "")

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsIntRequired(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		// Use default if env var is not set at all
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		// Return error if env var is set but invalid
		return 0, fmt.Errorf("invalid integer value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsDecimalRequired(key string, defaultValue decimal.Decimal) (decimal.Decimal, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := decimal.NewFromString(strings.TrimSpace(valueStr))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsList(key string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return nil
	}
	var values []string
	for _, v := range strings.Split(valueStr, ",") {
		if v = strings.ToUpper(strings.TrimSpace(v)); v != "" {
			values = append(values, v)
		}
	}
	return values
}
