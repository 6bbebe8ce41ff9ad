package producers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/fraud-scoring-pipeline/internal/config"
	"github.com/segmentio/kafka-go"
)

// TransactionFeedProducer publishes raw source records to the transaction
// topic that the streaming pipeline consumes.
type TransactionFeedProducer struct {
	logger *slog.Logger
	writer KafkaWriter
	topic  string
}

// NewTransactionFeedProducer creates a feed producer and ensures the
// transaction topic exists.
func NewTransactionFeedProducer(ctx context.Context, logger *slog.Logger, cfg *config.KafkaConfig) (*TransactionFeedProducer, error) {
	if cfg.TransactionTopic == "" {
		return nil, fmt.Errorf("kafka transaction topic is not configured")
	}

	conn, err := kafka.Dial("tcp", cfg.Brokers)
	if err != nil {
		return nil, fmt.Errorf("failed to dial kafka for feed producer: %w", err)
	}
	defer conn.Close()

	err = createKafkaTopicIfNotExists(conn, cfg.TransactionTopic, cfg.NumPartitions, cfg.ReplicationFactor, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure transaction topic %s exists: %w", cfg.TransactionTopic, err)
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers),
		Topic:        cfg.TransactionTopic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
		Async:        true, // Using async for high throughput
		WriteTimeout: cfg.MaxWait,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				logger.Error("Failed to write messages asynchronously", "topic", cfg.TransactionTopic, "error", err, "count", len(messages))
			} else {
				logger.Debug("Successfully wrote messages asynchronously", "topic", cfg.TransactionTopic, "count", len(messages))
			}
		},
	}

	return &TransactionFeedProducer{
		logger: logger,
		writer: writer,
		topic:  cfg.TransactionTopic,
	}, nil
}

// Publish marshals value as JSON and writes it keyed by key.
func (p *TransactionFeedProducer) Publish(ctx context.Context, key string, value interface{}) error {
	jsonValue, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal feed message: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: jsonValue,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("Failed to publish feed message",
			"topic", p.topic,
			"key", key,
			"error", err,
		)
		return fmt.Errorf("failed to publish message to %s: %w", p.topic, err)
	}

	p.logger.Debug("Published feed message", "topic", p.topic, "key", key)
	return nil
}

func (p *TransactionFeedProducer) Close() error {
	p.logger.Info("Closing transaction feed producer", "topic", p.topic)
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close feed kafka writer for topic %s: %w", p.topic, err)
	}
	return nil
}
