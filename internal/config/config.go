// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/solsocial/curve-engine/internal/curve"
	"github.com/solsocial/curve-engine/internal/revenue"
)

type Config struct {
	// HTTP settings
	Port            string
	ShutdownTimeout time.Duration

	// Storage settings
	DatabaseURL string
	RedisURL    string
	CacheTTL    time.Duration

	// Default parameters for new curves
	Curve curve.Parameters

	// Revenue sharing
	FeeShares revenue.Shares
	TipShares revenue.Shares

	// Trade limits
	MinTrade           uint64
	MaxTrade           uint64
	MaxHoldingBps      uint64
	DefaultMaxSlippage decimal.Decimal

	// Rate limiting
	RateLimitRPS   float64
	RateLimitBurst int
}

// Load reads the configuration and validates the parts that would
// otherwise fail on the first request.
func Load() (*Config, error) {
	defaults := curve.DefaultParameters()

	cfg := &Config{
		// HTTP
		Port:            getEnv("PORT", "8080"),
		ShutdownTimeout: getDurationEnv("SHUTDOWN_TIMEOUT", 5*time.Second),

		// Storage
		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisURL:    getEnv("REDIS_URL", ""),
		CacheTTL:    getDurationEnv("CACHE_TTL", 30*time.Second),

		// Curve
		Curve: curve.Parameters{
			BasePrice:  getDecimalEnv("CURVE_BASE_PRICE", defaults.BasePrice),
			Multiplier: getDecimalEnv("CURVE_MULTIPLIER", defaults.Multiplier),
			MaxSupply:  getUintEnv("CURVE_MAX_SUPPLY", defaults.MaxSupply),
			FeeRate:    getDecimalEnv("CURVE_FEE_RATE", defaults.FeeRate),
			MinPrice:   getDecimalEnv("CURVE_MIN_PRICE", defaults.MinPrice),
		},

		// Revenue
		FeeShares: revenue.Shares{
			CreatorPct:  getDecimalEnv("CREATOR_FEE_PCT", decimal.NewFromInt(50)),
			PlatformPct: getDecimalEnv("PLATFORM_FEE_PCT", decimal.NewFromInt(10)),
		},
		TipShares: revenue.Shares{
			CreatorPct:  getDecimalEnv("CREATOR_TIP_PCT", decimal.NewFromInt(80)),
			PlatformPct: getDecimalEnv("PLATFORM_TIP_PCT", decimal.NewFromInt(5)),
		},

		// Limits
		MinTrade:           getUintEnv("MIN_TRADE", 1),
		MaxTrade:           getUintEnv("MAX_TRADE", 1000),
		MaxHoldingBps:      getUintEnv("MAX_HOLDING_BPS", 0),
		DefaultMaxSlippage: getDecimalEnv("DEFAULT_MAX_SLIPPAGE", decimal.NewFromInt(100)),

		// Rate limiting
		RateLimitRPS:   getFloatEnv("RATE_LIMIT_RPS", 50),
		RateLimitBurst: getIntEnv("RATE_LIMIT_BURST", 100),
	}

	if err := cfg.Curve.Validate(); err != nil {
		return nil, fmt.Errorf("config: default curve: %w", err)
	}
	if err := cfg.FeeShares.Validate(); err != nil {
		return nil, fmt.Errorf("config: fee shares: %w", err)
	}
	if err := cfg.TipShares.Validate(); err != nil {
		return nil, fmt.Errorf("config: tip shares: %w", err)
	}
	if cfg.MaxHoldingBps > 10_000 {
		return nil, fmt.Errorf("config: MAX_HOLDING_BPS %d above 10000", cfg.MaxHoldingBps)
	}
	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getIntEnv(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getUintEnv(key string, defaultVal uint64) uint64 {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.ParseUint(val, 10, 64); err == nil {
			return i
		}
	}
	return defaultVal
}

func getFloatEnv(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getDecimalEnv(key string, defaultVal decimal.Decimal) decimal.Decimal {
	if val := os.Getenv(key); val != "" {
		if d, err := decimal.NewFromString(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func getDurationEnv(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
