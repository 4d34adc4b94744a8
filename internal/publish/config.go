package publish

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/correlator-io/alertmon/internal/config"
)

const (
	defaultTopic        = "alertmon.alerts"
	defaultWriteTimeout = 10 * time.Second
	defaultBatchSize    = 100
	defaultBatchBytes   = 1 << 20
)

var (
	// ErrTopicEmpty is returned when brokers are configured without a topic.
	ErrTopicEmpty = errors.New("kafka topic cannot be empty")

	// ErrInvalidBroker is returned when a broker address is not host:port.
	ErrInvalidBroker = errors.New("invalid kafka broker address")
)

// Config holds the Kafka hand-off settings. No brokers means alerts are only logged.
type Config struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
	BatchSize    int
	BatchBytes   int64
}

// LoadConfig loads publisher configuration from environment variables with fallback to defaults.
func LoadConfig() *Config {
	return &Config{
		Brokers:      config.GetEnvList("ALERTMON_KAFKA_BROKERS", nil),
		Topic:        config.GetEnvStr("ALERTMON_KAFKA_TOPIC", defaultTopic),
		WriteTimeout: config.GetEnvDuration("ALERTMON_KAFKA_WRITE_TIMEOUT", defaultWriteTimeout),
		BatchSize:    config.GetEnvInt("ALERTMON_KAFKA_BATCH_SIZE", defaultBatchSize),
		BatchBytes:   config.GetEnvInt64("ALERTMON_KAFKA_BATCH_BYTES", defaultBatchBytes),
	}
}

// Enabled reports whether Kafka brokers are configured.
func (c *Config) Enabled() bool {
	return c != nil && len(c.Brokers) > 0
}

// Validate checks the settings when Kafka is enabled.
func (c *Config) Validate() error {
	if !c.Enabled() {
		return nil
	}

	if strings.TrimSpace(c.Topic) == "" {
		return ErrTopicEmpty
	}

	for _, broker := range c.Brokers {
		host, port, ok := strings.Cut(broker, ":")
		if !ok || host == "" || port == "" {
			return fmt.Errorf("%w: '%s' (expected host:port)", ErrInvalidBroker, broker)
		}
	}

	return nil
}
