package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/juseg/aftershocks/internal/config"
	"github.com/juseg/aftershocks/internal/domain"
)

// Writer publishes newly observed earthquake records to a Kafka topic.
// It implements pipeline.Publisher.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// Publish serializes records and sends them in a single WriteMessages call.
// Records hashing to the same key land on the same partition.
func (w *Writer) Publish(ctx context.Context, records []domain.EarthquakeRecord) error {
	if len(records) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(records))
	for i := range records {
		msg, err := serializeToMessage(records[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish %d records: %w", len(msgs), err)
	}
	w.logger.Debug("records published", "topic", w.writer.Topic, "count", len(msgs))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// message is the JSON value of a published record. MagnitudeValue is omitted
// when the raw magnitude cannot be parsed.
type message struct {
	ID             string    `json:"id"`
	Time           time.Time `json:"time"`
	Region         string    `json:"region_name"`
	Magnitude      string    `json:"magnitude"`
	MagnitudeValue *float64  `json:"magnitude_value,omitempty"`
	Latitude       string    `json:"latitude,omitempty"`
	Longitude      string    `json:"longitude,omitempty"`
	Depth          string    `json:"depth,omitempty"`
}

// serializeToMessage marshals an EarthquakeRecord into a Kafka message keyed
// by its record ID.
func serializeToMessage(r domain.EarthquakeRecord) (kafkago.Message, error) {
	id := domain.RecordID(r)
	m := message{
		ID:        id,
		Time:      r.Time,
		Region:    r.Region,
		Magnitude: r.Magnitude,
		Latitude:  r.Latitude,
		Longitude: r.Longitude,
		Depth:     r.Depth,
	}
	if v, err := domain.ParseMagnitude(r.Magnitude); err == nil {
		m.MagnitudeValue = &v
	}

	data, err := json.Marshal(m)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize earthquake record: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(id),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "region_name", Value: []byte(r.Region)},
			{Key: "observed_at", Value: []byte(r.Time.Format(time.RFC3339))},
		},
	}, nil
}
