package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/correlator-io/alertmon/internal/alerts"
)

type fakeWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}

	w.messages = append(w.messages, msgs...)

	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true

	return nil
}

func modelAlert(id, modelID string) alerts.Alert {
	return alerts.Alert{
		ID:           id,
		AlertClassID: modelID,
		Type:         alerts.TypeModel,
		Status:       alerts.DeliveryPending,
		Model: &alerts.ModelData{
			BaseData: alerts.BaseData{ID: id, ModelUniqueID: modelID, Status: "error"},
			Alias:    "orders",
		},
	}
}

func header(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}

	return ""
}

func TestKafkaPublisher_Publish(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	writer := &fakeWriter{}
	p := newKafkaPublisher(writer, "alertmon.alerts", 0, nil)
	p.newID = func() string { return "batch-1" }

	receipt, err := p.Publish(context.Background(), []alerts.Alert{
		modelAlert("a1", "model.jaffle.orders"),
		modelAlert("a2", "model.jaffle.revenue"),
	})
	require.NoError(t, err)

	assert.Equal(t, Receipt{BatchID: "batch-1", AlertIDs: []string{"a1", "a2"}, Published: 2}, receipt)
	require.Len(t, writer.messages, 2)

	msg := writer.messages[0]
	assert.Equal(t, "a1", string(msg.Key))
	assert.Equal(t, "batch-1", header(msg, HeaderBatchID))
	assert.Equal(t, "model", header(msg, HeaderAlertType))

	var decoded alerts.Alert
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "a1", decoded.ID)
	require.NotNil(t, decoded.Model)
	assert.Equal(t, "model.jaffle.orders", decoded.Model.ModelUniqueID)

	require.NoError(t, p.Close())
	assert.True(t, writer.closed)
}

func TestKafkaPublisher_EmptyBatch(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	writer := &fakeWriter{err: errors.New("must not be called")}
	p := newKafkaPublisher(writer, "alertmon.alerts", 0, nil)

	receipt, err := p.Publish(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, receipt.Published)
	assert.NotEmpty(t, receipt.BatchID)
}

func TestKafkaPublisher_WriteError(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	writer := &fakeWriter{err: errors.New("leader not available")}
	p := newKafkaPublisher(writer, "alertmon.alerts", 0, nil)

	receipt, err := p.Publish(context.Background(), []alerts.Alert{modelAlert("a1", "model.jaffle.orders")})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPublishFailed)
	assert.Contains(t, err.Error(), "leader not available")
	assert.Zero(t, receipt.Published)
	assert.Empty(t, receipt.AlertIDs)
}

func TestLogPublisher_Publish(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	var buf bytes.Buffer

	p := NewLogPublisher(slog.New(slog.NewJSONHandler(&buf, nil)))

	receipt, err := p.Publish(context.Background(), []alerts.Alert{modelAlert("a1", "model.jaffle.orders")})
	require.NoError(t, err)
	assert.Equal(t, 1, receipt.Published)
	assert.Equal(t, []string{"a1"}, receipt.AlertIDs)

	assert.Contains(t, buf.String(), `"alert_id":"a1"`)
	assert.Contains(t, buf.String(), `"node":"model.jaffle.orders"`)
	assert.NoError(t, p.Close())
}

func TestNew(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	p, err := New(&Config{}, nil)
	require.NoError(t, err)
	assert.IsType(t, &LogPublisher{}, p)

	p, err = New(&Config{Brokers: []string{"localhost:9092"}, Topic: "alerts"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &KafkaPublisher{}, p)
	require.NoError(t, p.Close())

	_, err = New(&Config{Brokers: []string{"localhost"}, Topic: "alerts"}, nil)
	assert.ErrorIs(t, err, ErrInvalidBroker)

	_, err = New(&Config{Brokers: []string{"localhost:9092"}, Topic: " "}, nil)
	assert.ErrorIs(t, err, ErrTopicEmpty)
}

func TestLoadConfig(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	t.Setenv("ALERTMON_KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092")
	t.Setenv("ALERTMON_KAFKA_TOPIC", "")
	t.Setenv("ALERTMON_KAFKA_BATCH_BYTES", "2048")

	cfg := LoadConfig()
	assert.True(t, cfg.Enabled())
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Brokers)
	assert.Equal(t, defaultTopic, cfg.Topic)
	assert.Equal(t, defaultBatchSize, cfg.BatchSize)
	assert.Equal(t, int64(2048), cfg.BatchBytes)
	assert.NoError(t, cfg.Validate())
}
