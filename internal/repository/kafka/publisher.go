package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/sarida/backend/internal/config"
	"github.com/sarida/backend/internal/domain"
)

// messageWriter is the subset of *kafkago.Writer used by Publisher.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher produces submitted field reports to a Kafka topic.
// It implements domain.ReportPublisher.
type Publisher struct {
	writer messageWriter
	logger *slog.Logger
}

// NewPublisher creates a Kafka producer for the configured reports topic.
func NewPublisher(cfg *config.Config, logger *slog.Logger) *Publisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaReportsTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Publisher{writer: w, logger: logger}
}

// PublishReport serializes and publishes a single report keyed by municipality,
// so reports from one municipality stay ordered within a partition.
func (p *Publisher) PublishReport(ctx context.Context, r domain.Report) error {
	msg, err := serializeToMessage(r)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka: publish report %s: %w", r.ID, err)
	}
	p.logger.Debug("report published", "id", r.ID, "municipality", r.Municipality)
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// serializeToMessage marshals a Report into a Kafka message.
func serializeToMessage(r domain.Report) (kafkago.Message, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize report: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(r.Municipality),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "report_id", Value: []byte(r.ID)},
			{Key: "submitted_at", Value: []byte(r.Timestamp.Format(time.RFC3339))},
		},
	}, nil
}
