// Package publish hands filtered alerts to downstream formatting and delivery.
package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/correlator-io/alertmon/internal/alerts"
	"github.com/correlator-io/alertmon/internal/canonicalization"
)

// Header keys set on every published message.
const (
	HeaderBatchID   = "batch_id"
	HeaderAlertType = "alert_type"
)

// ErrPublishFailed is returned when a batch could not be handed off.
var ErrPublishFailed = errors.New("alert publish failed")

type (
	// Publisher hands a batch of filtered alerts downstream.
	Publisher interface {
		Publish(ctx context.Context, batch []alerts.Alert) (Receipt, error)
		Close() error
	}

	// Receipt identifies a published batch.
	Receipt struct {
		BatchID   string   `json:"batch_id"`
		AlertIDs  []string `json:"alert_ids"`
		Published int      `json:"published"`
	}

	// messageWriter is the subset of *kafka.Writer used for publishing.
	messageWriter interface {
		WriteMessages(ctx context.Context, msgs ...kafka.Message) error
		Close() error
	}

	// KafkaPublisher writes one JSON message per alert, keyed by alert id.
	KafkaPublisher struct {
		writer  messageWriter
		topic   string
		timeout time.Duration
		logger  *slog.Logger
		newID   func() string
	}

	// LogPublisher logs alerts instead of sending them anywhere.
	LogPublisher struct {
		logger *slog.Logger
		newID  func() string
	}
)

// New returns a KafkaPublisher when brokers are configured, otherwise a LogPublisher.
func New(cfg *Config, logger *slog.Logger) (Publisher, error) {
	if !cfg.Enabled() {
		return NewLogPublisher(logger), nil
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return NewKafkaPublisher(cfg, logger), nil
}

// NewKafkaPublisher creates a publisher backed by a kafka-go Writer.
func NewKafkaPublisher(cfg *Config, logger *slog.Logger) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchSize:    cfg.BatchSize,
		BatchBytes:   cfg.BatchBytes,
		WriteTimeout: cfg.WriteTimeout,
		// Fixture and dev brokers start without the topic.
		AllowAutoTopicCreation: true,
	}

	return newKafkaPublisher(writer, cfg.Topic, cfg.WriteTimeout, logger)
}

func newKafkaPublisher(writer messageWriter, topic string, timeout time.Duration, logger *slog.Logger) *KafkaPublisher {
	if logger == nil {
		logger = slog.Default()
	}

	return &KafkaPublisher{
		writer:  writer,
		topic:   topic,
		timeout: timeout,
		logger:  logger,
		newID:   uuid.NewString,
	}
}

// Publish writes the batch in one WriteMessages call. An empty batch writes nothing.
func (p *KafkaPublisher) Publish(ctx context.Context, batch []alerts.Alert) (Receipt, error) {
	receipt := Receipt{BatchID: p.newID(), AlertIDs: make([]string, 0, len(batch))}
	if len(batch) == 0 {
		return receipt, nil
	}

	msgs := make([]kafka.Message, 0, len(batch))

	for _, alert := range batch {
		msg, err := encodeMessage(alert, receipt.BatchID)
		if err != nil {
			return receipt, fmt.Errorf("%w: %w", ErrPublishFailed, err)
		}

		msgs = append(msgs, msg)
		receipt.AlertIDs = append(receipt.AlertIDs, alert.ID)
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		p.logger.Error("Failed to publish alerts",
			slog.String("batch_id", receipt.BatchID),
			slog.String("topic", p.topic),
			slog.Int("alerts", len(msgs)),
			slog.String("error", err.Error()))

		return Receipt{BatchID: receipt.BatchID}, fmt.Errorf("%w: batch %s: %w", ErrPublishFailed, receipt.BatchID, err)
	}

	receipt.Published = len(msgs)

	p.logger.Info("Published alerts",
		slog.String("batch_id", receipt.BatchID),
		slog.String("topic", p.topic),
		slog.Int("alerts", receipt.Published))

	return receipt, nil
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func encodeMessage(alert alerts.Alert, batchID string) (kafka.Message, error) {
	value, err := json.Marshal(alert)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode alert '%s': %w", alert.ID, err)
	}

	return kafka.Message{
		Key:   []byte(alert.ID),
		Value: value,
		Headers: []kafka.Header{
			{Key: HeaderBatchID, Value: []byte(batchID)},
			{Key: HeaderAlertType, Value: []byte(alert.Type.String())},
		},
	}, nil
}

// NewLogPublisher creates a publisher that only logs.
func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}

	return &LogPublisher{logger: logger, newID: uuid.NewString}
}

// Publish logs one line per alert.
func (p *LogPublisher) Publish(_ context.Context, batch []alerts.Alert) (Receipt, error) {
	receipt := Receipt{BatchID: p.newID(), AlertIDs: make([]string, 0, len(batch))}

	for _, alert := range batch {
		p.logger.Info("Alert ready for delivery",
			slog.String("batch_id", receipt.BatchID),
			slog.String("alert_id", alert.ID),
			slog.String("alert_class_id", alert.AlertClassID),
			slog.String("type", alert.Type.String()),
			slog.String("node", alert.NodeName()),
			slog.String("model", canonicalization.ShortName(alert.ModelUniqueID())),
			slog.String("status", string(alert.ResultStatus())),
			slog.Any("subscribers", alert.Subscribers()))

		receipt.AlertIDs = append(receipt.AlertIDs, alert.ID)
	}

	receipt.Published = len(batch)

	return receipt, nil
}

// Close is a no-op.
func (p *LogPublisher) Close() error {
	return nil
}
