package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/couchcryptid/aquifer-feature-etl/internal/config"
	"github.com/couchcryptid/aquifer-feature-etl/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// Writer publishes feature vectors to a Kafka topic.
// It implements pipeline.BatchLoader.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured sink topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaSinkTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// LoadBatch publishes vectors in a single WriteMessages call. Messages are
// keyed by location so one location's dates stay on one partition.
func (w *Writer) LoadBatch(ctx context.Context, vectors []domain.FeatureVector) error {
	if len(vectors) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(vectors))
	for i := range vectors {
		msg, err := serializeToMessage(vectors[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish %d vectors: %w", len(msgs), err)
	}
	w.logger.Debug("vectors published", "topic", w.writer.Topic, "count", len(msgs))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// MessageKey is the Kafka key of a vector: "<location_id>|<date>".
func MessageKey(fv domain.FeatureVector) string {
	return fv.Location().ID + "|" + fv.Date().Format(time.DateOnly)
}

// serializeToMessage marshals a FeatureVector into a Kafka message.
func serializeToMessage(fv domain.FeatureVector) (kafkago.Message, error) {
	data, err := json.Marshal(fv)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize feature vector: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(MessageKey(fv)),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "feature_complete", Value: []byte(strconv.FormatBool(fv.Complete()))},
			{Key: "generated_at", Value: []byte(fv.GeneratedAt().Format(time.RFC3339))},
		},
	}, nil
}
