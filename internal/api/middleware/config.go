package middleware

import (
	"time"

	"github.com/correlator-io/alertmon/internal/config"
)

// Config holds rate limiter configuration.
//
// Rates are requests per second. A zero burst is computed as 2 × rate.
type Config struct {
	GlobalRPS int
	ClientRPS int

	GlobalBurst int
	ClientBurst int

	CleanupInterval time.Duration
	IdleTimeout     time.Duration
	MaxClients      int
}

// LoadConfig loads rate limiter configuration from environment variables with fallback to defaults.
func LoadConfig() *Config {
	return &Config{
		GlobalRPS:       config.GetEnvInt("ALERTMON_GLOBAL_RPS", defaultGlobalRPS),
		ClientRPS:       config.GetEnvInt("ALERTMON_CLIENT_RPS", defaultClientRPS),
		GlobalBurst:     config.GetEnvInt("ALERTMON_GLOBAL_BURST", 0),
		ClientBurst:     config.GetEnvInt("ALERTMON_CLIENT_BURST", 0),
		CleanupInterval: config.GetEnvDuration("ALERTMON_RATE_LIMIT_CLEANUP_INTERVAL", rateLimiterCleanupInterval),
		IdleTimeout:     config.GetEnvDuration("ALERTMON_RATE_LIMIT_IDLE_TIMEOUT", rateLimiterIdleTimeout),
		MaxClients:      config.GetEnvInt("ALERTMON_RATE_LIMIT_MAX_CLIENTS", defaultMaxClients),
	}
}
