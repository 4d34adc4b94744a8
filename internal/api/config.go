// Package api serves filtered alerts and test result reports over HTTP.
package api

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/correlator-io/alertmon/internal/config"
)

const (
	defaultPort           int    = 8080
	maxPort               int    = 65535
	defaultHost           string = "0.0.0.0"
	defaultTimeout               = 30 * time.Second
	defaultRequestTimeout        = 25 * time.Second
	defaultLogLevel              = slog.LevelInfo
	defaultVersion               = "dev"
)

var (
	// ErrInvalidPort indicates the port number is outside valid range (1-65535).
	ErrInvalidPort = errors.New("invalid port")

	// ErrEmptyHost indicates the server host address is empty.
	ErrEmptyHost = errors.New("host cannot be empty")

	// ErrInvalidReadTimeout indicates the read timeout is zero or negative.
	ErrInvalidReadTimeout = errors.New("read timeout must be positive")

	// ErrInvalidWriteTimeout indicates the write timeout is zero or negative.
	ErrInvalidWriteTimeout = errors.New("write timeout must be positive")

	// ErrInvalidShutdownTimeout indicates the shutdown timeout is zero or negative.
	ErrInvalidShutdownTimeout = errors.New("shutdown timeout must be positive")

	// ErrInvalidRequestTimeout indicates the request timeout is not below the write timeout.
	ErrInvalidRequestTimeout = errors.New("request timeout must be positive and below the write timeout")
)

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            int
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	// RequestTimeout bounds one warehouse round trip made by a handler.
	RequestTimeout time.Duration
	LogLevel       slog.Level
	// Version is reported by /health and the X-Alertmon-Version header.
	Version string
}

// LoadServerConfig loads server configuration from environment variables with defaults.
func LoadServerConfig() *ServerConfig {
	return &ServerConfig{
		Port:            config.GetEnvInt("ALERTMON_SERVER_PORT", defaultPort),
		Host:            config.GetEnvStr("ALERTMON_SERVER_HOST", defaultHost),
		ReadTimeout:     config.GetEnvDuration("ALERTMON_SERVER_READ_TIMEOUT", defaultTimeout),
		WriteTimeout:    config.GetEnvDuration("ALERTMON_SERVER_WRITE_TIMEOUT", defaultTimeout),
		ShutdownTimeout: config.GetEnvDuration("ALERTMON_SERVER_SHUTDOWN_TIMEOUT", defaultTimeout),
		RequestTimeout:  config.GetEnvDuration("ALERTMON_SERVER_REQUEST_TIMEOUT", defaultRequestTimeout),
		LogLevel:        config.GetEnvLogLevel("ALERTMON_LOG_LEVEL", defaultLogLevel),
		Version:         defaultVersion,
	}
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Validate validates the server configuration.
func (c *ServerConfig) Validate() error {
	if c.Port <= 0 || c.Port > maxPort {
		return fmt.Errorf("%w: %d, must be between 1 and %d", ErrInvalidPort, c.Port, maxPort)
	}

	if c.Host == "" {
		return ErrEmptyHost
	}

	if c.ReadTimeout <= 0 {
		return fmt.Errorf("%w: got %v", ErrInvalidReadTimeout, c.ReadTimeout)
	}

	if c.WriteTimeout <= 0 {
		return fmt.Errorf("%w: got %v", ErrInvalidWriteTimeout, c.WriteTimeout)
	}

	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("%w: got %v", ErrInvalidShutdownTimeout, c.ShutdownTimeout)
	}

	if c.RequestTimeout <= 0 || c.RequestTimeout >= c.WriteTimeout {
		return fmt.Errorf("%w: got %v (write timeout %v)", ErrInvalidRequestTimeout, c.RequestTimeout, c.WriteTimeout)
	}

	return nil
}
