package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/storm-impact-report/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// EventReportPublished is the event_type header of run summary messages.
const EventReportPublished = "report.published"

// Writer publishes run summaries to a Kafka topic.
// It implements pipeline.Notifier.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the given topic.
func NewWriter(brokers []string, topic string, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &Writer{writer: w, logger: logger}
}

// Publish sends one message describing a finished report run, keyed by
// country code.
func (w *Writer) Publish(ctx context.Context, summary domain.RunSummary) error {
	msg, err := serializeToMessage(summary)
	if err != nil {
		return err
	}
	if err := w.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish run summary: %w", err)
	}
	w.logger.Debug("run summary published", "topic", w.writer.Topic, "country", summary.Country)
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a RunSummary into a Kafka message.
func serializeToMessage(summary domain.RunSummary) (kafkago.Message, error) {
	data, err := json.Marshal(summary)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize run summary: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(summary.Country),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(EventReportPublished)},
			{Key: "country", Value: []byte(summary.Country)},
			{Key: "generated_at", Value: []byte(summary.FinishedAt.Format(time.RFC3339))},
		},
	}, nil
}
