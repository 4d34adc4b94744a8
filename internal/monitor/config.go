package monitor

import (
	"errors"
	"fmt"
	"time"

	"github.com/correlator-io/alertmon/internal/config"
)

const (
	defaultDaysBack       = 7
	defaultReportDaysBack = 7
	maxDaysBack           = 365
)

// ErrInvalidDaysBack is returned when days back is outside 1..365.
var ErrInvalidDaysBack = errors.New("invalid days back")

// Config holds the monitor defaults.
type Config struct {
	DaysBack            int
	ReportDaysBack      int
	SuppressionInterval time.Duration
	OverrideSuppression bool
}

// LoadConfig loads monitor configuration from environment variables with fallback to defaults.
func LoadConfig() *Config {
	return &Config{
		DaysBack:            config.GetEnvInt("ALERTMON_DAYS_BACK", defaultDaysBack),
		ReportDaysBack:      config.GetEnvInt("ALERTMON_REPORT_DAYS_BACK", defaultReportDaysBack),
		SuppressionInterval: config.GetEnvDuration("ALERTMON_SUPPRESSION_INTERVAL", 0),
		OverrideSuppression: config.GetEnvBool("ALERTMON_OVERRIDE_META_SUPPRESSION", false),
	}
}

// Validate checks the day ranges and interval.
func (c *Config) Validate() error {
	if err := validateDaysBack(c.DaysBack); err != nil {
		return err
	}

	if err := validateDaysBack(c.ReportDaysBack); err != nil {
		return err
	}

	if c.SuppressionInterval < 0 {
		return fmt.Errorf("suppression interval cannot be negative: %s", c.SuppressionInterval)
	}

	return nil
}

func validateDaysBack(days int) error {
	if days < 1 || days > maxDaysBack {
		return fmt.Errorf("%w: %d (valid: 1-%d)", ErrInvalidDaysBack, days, maxDaysBack)
	}

	return nil
}
