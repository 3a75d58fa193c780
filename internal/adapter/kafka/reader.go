package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/traffic-eagle/internal/domain"
	"github.com/couchcryptid/traffic-eagle/internal/observability"
	kafkago "github.com/segmentio/kafka-go"
)

// ErrEmptyTopic is returned when the topic has no accident records yet.
var ErrEmptyTopic = errors.New("no accident records on topic")

// Reader replays an accident topic from the first offset. It implements
// pipeline.AccidentSource. The topic is read as a single partition.
type Reader struct {
	reader  *kafkago.Reader
	idle    time.Duration
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewReader creates a partition reader for topic. A load finishes once no
// message arrives for idle.
func NewReader(brokers []string, topic string, idle time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Reader {
	r := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:   brokers,
		Topic:     topic,
		Partition: 0,
		MinBytes:  1,
		MaxBytes:  10e6,
	})
	return &Reader{reader: r, idle: idle, logger: logger, metrics: metrics}
}

// Describe names the topic for logs and errors.
func (r *Reader) Describe() string {
	return "kafka:" + r.reader.Config().Topic
}

// LoadAccidents reads every message from the start of the topic until it has
// been idle for the configured duration. Undecodable messages are skipped.
func (r *Reader) LoadAccidents(ctx context.Context) ([]domain.AccidentRecord, error) {
	if err := r.reader.SetOffset(kafkago.FirstOffset); err != nil {
		return nil, fmt.Errorf("rewind %s: %w", r.Describe(), err)
	}

	var (
		records []domain.AccidentRecord
		skipped int
	)
	for {
		fetchCtx, cancel := context.WithTimeout(ctx, r.idle)
		msg, err := r.reader.FetchMessage(fetchCtx)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if errors.Is(err, context.DeadlineExceeded) {
				break
			}
			return nil, fmt.Errorf("fetch from %s: %w", r.Describe(), err)
		}

		rec, err := parseMessage(msg)
		if err != nil {
			skipped++
			r.logger.Warn("skipping accident message", "error", err, "partition", msg.Partition, "offset", msg.Offset)
			continue
		}
		records = append(records, rec)
	}

	if skipped > 0 {
		r.metrics.RecordsSkipped.WithLabelValues("accidents").Add(float64(skipped))
	}
	if len(records) == 0 {
		return nil, ErrEmptyTopic
	}
	r.logger.Info("kafka topic replayed", "topic", r.reader.Config().Topic, "records", len(records), "skipped", skipped)
	return records, nil
}

func (r *Reader) Close() error {
	return r.reader.Close()
}
