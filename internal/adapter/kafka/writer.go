package kafka

import (
	"context"
	"log/slog"
	"time"

	"github.com/couchcryptid/egms-etl-service/internal/config"
	"github.com/couchcryptid/egms-etl-service/internal/domain"
	"github.com/couchcryptid/egms-etl-service/internal/observability"
	kafkago "github.com/segmentio/kafka-go"
)

// Writer publishes outcome events to a Kafka topic.
// It implements pipeline.EventSink.
type Writer struct {
	writer  *kafkago.Writer
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewWriter creates a Kafka producer for the configured outcome topic.
func NewWriter(cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaOutcomeTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, metrics: metrics, logger: logger}
}

// Publish serializes and writes events in a single WriteMessages call. Events
// sharing a key (same tile and displacement) land on the same partition.
func (w *Writer) Publish(ctx context.Context, events []domain.OutcomeEvent) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(events))
	for i := range events {
		msg, err := serializeToMessage(events[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return err
	}
	w.metrics.EventsPublished.Add(float64(len(msgs)))
	w.logger.Debug("outcome events published", "count", len(msgs), "topic", w.writer.Topic)
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals an OutcomeEvent into a Kafka message.
func serializeToMessage(event domain.OutcomeEvent) (kafkago.Message, error) {
	data, err := event.Serialize()
	if err != nil {
		return kafkago.Message{}, err
	}
	return kafkago.Message{
		Key:   []byte(event.Key()),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(event.Kind)},
			{Key: "batch_id", Value: []byte(event.BatchID)},
			{Key: "processed_at", Value: []byte(event.ProcessedAt.Format(time.RFC3339))},
		},
	}, nil
}
