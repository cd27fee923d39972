// Package config loads runtime configuration from the environment,
// with an optional .env file for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config carries all runtime settings for the trader.
type Config struct {
	// Broker API
	BrokerBaseURL   string
	BrokerAppKey    string
	BrokerAppSecret string
	BrokerWSURL     string

	// Advisory verifier (optional; empty base URL disables it)
	AdvisorBaseURL string
	AdvisorAPIKey  string
	AdvisorBudget  int

	// Storage (optional; empty DSN selects the in-memory stores)
	PostgresDSN   string
	ClickhouseDSN string

	// Pipeline
	Watchlist     []string
	CycleInterval time.Duration

	// Risk
	MaxPositionPct float64
	MaxPositions   int

	// Exits
	StopLossPct    float64
	TakeProfitPct  float64
	TrailingPct    float64
	MaxHoldingDays int

	// Rate limiting
	MaxRequestsPerWindow int
	RateWindow           time.Duration

	// Observability
	MetricsAddr string
	EventDir    string
	EventPrefix string
}

// Default returns the standard configuration.
func Default() *Config {
	return &Config{
		BrokerBaseURL:        "http://localhost:8080",
		AdvisorBudget:        50,
		CycleInterval:        30 * time.Second,
		MaxPositionPct:       0.10,
		MaxPositions:         10,
		StopLossPct:          0.07,
		TakeProfitPct:        0.20,
		TrailingPct:          0.05,
		MaxHoldingDays:       90,
		MaxRequestsPerWindow: 15,
		RateWindow:           time.Second,
		MetricsAddr:          ":9090",
		EventDir:             "logs",
		EventPrefix:          "trading",
	}
}

// FromEnv builds the configuration from environment variables on top of
// the defaults. A .env file in the working directory is loaded first if
// present.
func FromEnv() (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	cfg.BrokerBaseURL = envStr("BROKER_BASE_URL", cfg.BrokerBaseURL)
	cfg.BrokerAppKey = envStr("BROKER_APP_KEY", cfg.BrokerAppKey)
	cfg.BrokerAppSecret = envStr("BROKER_APP_SECRET", cfg.BrokerAppSecret)
	cfg.BrokerWSURL = envStr("BROKER_WS_URL", cfg.BrokerWSURL)

	cfg.AdvisorBaseURL = envStr("ADVISOR_BASE_URL", cfg.AdvisorBaseURL)
	cfg.AdvisorAPIKey = envStr("ADVISOR_API_KEY", cfg.AdvisorAPIKey)

	cfg.PostgresDSN = envStr("POSTGRES_DSN", cfg.PostgresDSN)
	cfg.ClickhouseDSN = envStr("CLICKHOUSE_DSN", cfg.ClickhouseDSN)

	cfg.MetricsAddr = envStr("METRICS_ADDR", cfg.MetricsAddr)
	cfg.EventDir = envStr("EVENT_DIR", cfg.EventDir)
	cfg.EventPrefix = envStr("EVENT_PREFIX", cfg.EventPrefix)

	var err error
	if cfg.AdvisorBudget, err = envInt("ADVISOR_DAILY_BUDGET", cfg.AdvisorBudget); err != nil {
		return nil, err
	}
	if cfg.CycleInterval, err = envDuration("CYCLE_INTERVAL", cfg.CycleInterval); err != nil {
		return nil, err
	}
	if cfg.MaxPositionPct, err = envFloat("MAX_POSITION_PCT", cfg.MaxPositionPct); err != nil {
		return nil, err
	}
	if cfg.MaxPositions, err = envInt("MAX_POSITIONS", cfg.MaxPositions); err != nil {
		return nil, err
	}
	if cfg.StopLossPct, err = envFloat("STOP_LOSS_PCT", cfg.StopLossPct); err != nil {
		return nil, err
	}
	if cfg.TakeProfitPct, err = envFloat("TAKE_PROFIT_PCT", cfg.TakeProfitPct); err != nil {
		return nil, err
	}
	if cfg.TrailingPct, err = envFloat("TRAILING_STOP_PCT", cfg.TrailingPct); err != nil {
		return nil, err
	}
	if cfg.MaxHoldingDays, err = envInt("MAX_HOLDING_DAYS", cfg.MaxHoldingDays); err != nil {
		return nil, err
	}
	if cfg.MaxRequestsPerWindow, err = envInt("RATE_MAX_REQUESTS", cfg.MaxRequestsPerWindow); err != nil {
		return nil, err
	}
	if cfg.RateWindow, err = envDuration("RATE_WINDOW", cfg.RateWindow); err != nil {
		return nil, err
	}

	cfg.Watchlist = splitList(envStr("WATCHLIST", ""))
	return cfg, nil
}

func envStr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s=%q: %w", key, v, err)
	}
	return n, nil
}

func envFloat(key string, fallback float64) (float64, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s=%q: %w", key, v, err)
	}
	return f, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s=%q: %w", key, v, err)
	}
	return d, nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
