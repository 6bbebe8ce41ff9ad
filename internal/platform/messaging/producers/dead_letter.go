package producers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/fraud-scoring-pipeline/internal/config"
	"github.com/fraud-scoring-pipeline/internal/domain/transaction"
	"github.com/segmentio/kafka-go"
)

const (
	reasonClassificationFailed = "classification_failed"
	reasonValidationFailed     = "validation_failed"
)

// deadLetterEnvelope is the wire shape of one dead-lettered record. Exactly
// one of Transaction and Record is set, depending on how far the record got.
type deadLetterEnvelope struct {
	RunID       string                   `json:"run_id"`
	Reason      string                   `json:"reason"`
	Detail      string                   `json:"detail,omitempty"`
	Transaction *transaction.Transaction `json:"transaction,omitempty"`
	Record      map[string]any           `json:"record,omitempty"`
	Timestamp   string                   `json:"timestamp"`
}

// DeadLetterProducer publishes the records a run could not process to the
// dead letter topic, bound to one run's lineage. Publishing is best-effort:
// failures are logged, never propagated, so a broker outage cannot take down
// a run that is otherwise making progress.
type DeadLetterProducer struct {
	logger *slog.Logger
	writer KafkaWriter
	topic  string
	runID  string
}

// NewDeadLetterProducer creates a dead letter producer for one run and
// ensures the topic exists. Returns (nil, nil) when no dead letter topic is
// configured; a nil producer is a valid no-op value.
func NewDeadLetterProducer(ctx context.Context, logger *slog.Logger, cfg *config.KafkaConfig, runID string) (*DeadLetterProducer, error) {
	if cfg.DeadLetterTopic == "" {
		logger.Info("Dead letter topic is not configured, failed records will only be logged")
		return nil, nil
	}

	conn, err := kafka.Dial("tcp", cfg.Brokers)
	if err != nil {
		return nil, fmt.Errorf("failed to dial kafka for dead letter producer: %w", err)
	}
	defer conn.Close()

	err = createKafkaTopicIfNotExists(conn, cfg.DeadLetterTopic, cfg.NumPartitions, cfg.ReplicationFactor, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure dead letter topic %s exists: %w", cfg.DeadLetterTopic, err)
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers),
		Topic:        cfg.DeadLetterTopic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
		WriteTimeout: cfg.MaxWait,
	}

	return &DeadLetterProducer{
		logger: logger,
		writer: writer,
		topic:  cfg.DeadLetterTopic,
		runID:  runID,
	}, nil
}

// ReportInvalid publishes one envelope per source record that failed
// validation.
func (p *DeadLetterProducer) ReportInvalid(ctx context.Context, records []*transaction.InvalidRecord) {
	if p == nil || len(records) == 0 {
		return
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	msgs := make([]kafka.Message, 0, len(records))
	for _, rec := range records {
		value, err := json.Marshal(deadLetterEnvelope{
			RunID:     p.runID,
			Reason:    reasonValidationFailed,
			Detail:    rec.Reason,
			Record:    rec.Record,
			Timestamp: now,
		})
		if err != nil {
			p.logger.Error("Failed to marshal invalid record for dead letter topic", "error", err)
			continue
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(p.runID),
			Value: value,
		})
	}

	p.publish(ctx, msgs, len(records))
}

// ReportFailed publishes the transactions of a classification batch that
// exhausted its retries.
func (p *DeadLetterProducer) ReportFailed(ctx context.Context, txs []*transaction.Transaction) {
	if p == nil || len(txs) == 0 {
		return
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	msgs := make([]kafka.Message, 0, len(txs))
	for _, tx := range txs {
		value, err := json.Marshal(deadLetterEnvelope{
			RunID:       p.runID,
			Reason:      reasonClassificationFailed,
			Transaction: tx,
			Timestamp:   now,
		})
		if err != nil {
			p.logger.Error("Failed to marshal failed transaction for dead letter topic", "transaction_id", tx.ID.String(), "error", err)
			continue
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(tx.ID.String()),
			Value: value,
		})
	}

	p.publish(ctx, msgs, len(txs))
}

func (p *DeadLetterProducer) publish(ctx context.Context, msgs []kafka.Message, total int) {
	if len(msgs) == 0 {
		return
	}

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		p.logger.Error("Failed to publish to dead letter topic",
			"topic", p.topic,
			"count", len(msgs),
			"error", err,
		)
		return
	}

	p.logger.Info("Published dead letter records", "topic", p.topic, "count", total)
}

// Close closes the underlying writer. Safe on a nil producer.
func (p *DeadLetterProducer) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close dead letter kafka writer for topic %s: %w", p.topic, err)
	}
	return nil
}
