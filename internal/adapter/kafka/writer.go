package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/case-data-qc/internal/config"
	"github.com/couchcryptid/case-data-qc/internal/domain"
	"github.com/couchcryptid/case-data-qc/internal/resultlog"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Writer publishes findings to a Kafka topic, one message per finding.
// It implements pipeline.Publisher.
type Writer struct {
	writer messageWriter
	logger *slog.Logger
}

// Finding is the wire form of one published finding.
type Finding struct {
	RunID     string    `json:"run_id"`
	Dataset   string    `json:"dataset"`
	Category  string    `json:"category"`
	Location  string    `json:"location"`
	Message   string    `json:"message"`
	ElapsedMS int64     `json:"ms"`
	LoadedAt  time.Time `json:"loaded_at"`
}

// NewWriter creates a Kafka producer for the configured findings topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaFindingsTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// Publish serializes every finding of log and writes them in a single
// WriteMessages call. Findings are keyed by location so one region's
// findings stay ordered within a partition.
func (w *Writer) Publish(ctx context.Context, ds domain.Dataset, log *resultlog.Log) error {
	messages := log.Messages()
	if len(messages) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(messages))
	for i, m := range messages {
		msg, err := serializeToMessage(ds, log, m)
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write findings: %w", err)
	}
	w.logger.Debug("findings published", "dataset", ds, "run_id", log.RunID(), "count", len(msgs))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals one finding into a Kafka message.
func serializeToMessage(ds domain.Dataset, log *resultlog.Log, m resultlog.Message) (kafkago.Message, error) {
	data, err := json.Marshal(Finding{
		RunID:     log.RunID(),
		Dataset:   string(ds),
		Category:  m.Category.Key(),
		Location:  m.Location,
		Message:   m.Text,
		ElapsedMS: m.ElapsedMS,
		LoadedAt:  log.LoadedAt(),
	})
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize finding: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(m.Location),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "run_id", Value: []byte(log.RunID())},
			{Key: "category", Value: []byte(m.Category.Key())},
			{Key: "loaded_at", Value: []byte(log.LoadedAt().Format(time.RFC3339))},
		},
	}, nil
}
