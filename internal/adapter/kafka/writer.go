package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/couchcryptid/seismic-template-trim/internal/config"
	"github.com/couchcryptid/seismic-template-trim/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// Writer publishes one message per written template.
// It implements pipeline.Recorder.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured template topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.Kafka.Brokers...),
		Topic:        cfg.Kafka.Topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		BatchTimeout: 50 * time.Millisecond,
	}
	return &Writer{writer: w, logger: logger.With("component", "kafka")}
}

func (w *Writer) Name() string { return "kafka" }

// Record serializes and publishes a template record. Messages are keyed by
// station so one station's templates stay ordered within a partition.
func (w *Writer) Record(ctx context.Context, rec domain.TemplateRecord) error {
	msg, err := serializeToMessage(rec)
	if err != nil {
		return err
	}
	return w.writer.WriteMessages(ctx, msg)
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a TemplateRecord into a Kafka message.
func serializeToMessage(rec domain.TemplateRecord) (kafkago.Message, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize template record: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(rec.Network + "." + rec.Station),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "template", Value: []byte(rec.Name)},
			{Key: "event_index", Value: []byte(strconv.Itoa(rec.EventIndex))},
			{Key: "origin", Value: []byte(rec.Origin.UTC().Format(time.RFC3339Nano))},
		},
	}, nil
}
