package sink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// ErrBrokersRequired is returned when the event publisher is built without
// any broker addresses.
var ErrBrokersRequired = errors.New("at least one Kafka broker is required")

// KafkaEvents publishes pipeline events to a Kafka topic for downstream
// subsystems (chunking, embedding, indexing). The payload is the JSON event
// envelope; the key is the doc_id so one document's events stay ordered
// within a partition.
type KafkaEvents struct {
	writer *kafka.Writer
	logger *slog.Logger
}

// NewKafkaEvents builds a publisher for the given brokers and topic.
func NewKafkaEvents(brokers []string, topic string, logger *slog.Logger) (*KafkaEvents, error) {
	if len(brokers) == 0 {
		return nil, ErrBrokersRequired
	}

	if logger == nil {
		logger = slog.Default()
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}

	logger.Info("Kafka event publisher ready",
		slog.Any("brokers", brokers),
		slog.String("topic", topic))

	return &KafkaEvents{writer: writer, logger: logger}, nil
}

// Publish sends one serialized event keyed by doc_id. An empty key leaves
// partitioning to the balancer.
func (k *KafkaEvents) Publish(ctx context.Context, key string, payload []byte) error {
	message := kafka.Message{Value: payload}
	if key != "" {
		message.Key = []byte(key)
	}

	if err := k.writer.WriteMessages(ctx, message); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

// Close flushes and releases the writer.
func (k *KafkaEvents) Close() error {
	return k.writer.Close()
}
