package kafka

import (
	"context"
	"log/slog"

	"github.com/couchcryptid/traffic-eagle/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// publishBatch bounds the number of messages per WriteMessages call.
const publishBatch = 500

// Writer publishes accident records to a Kafka topic.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for topic.
func NewWriter(brokers []string, topic string, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// Publish serializes and writes records in batches.
func (w *Writer) Publish(ctx context.Context, records []domain.AccidentRecord) error {
	for start := 0; start < len(records); start += publishBatch {
		end := min(start+publishBatch, len(records))
		msgs := make([]kafkago.Message, 0, end-start)
		for _, rec := range records[start:end] {
			msg, err := serializeToMessage(rec)
			if err != nil {
				return err
			}
			msgs = append(msgs, msg)
		}
		if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
			return err
		}
	}
	w.logger.Info("accident records published", "topic", w.writer.Topic, "count", len(records))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}
