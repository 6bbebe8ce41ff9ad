// Package consumers builds the Kafka consumer the streaming pipeline reads
// from. Fetch/commit pacing lives in the stream reader; this package only
// owns the reader configuration and lifecycle.
package consumers

import (
	"log/slog"

	"github.com/fraud-scoring-pipeline/internal/config"
	"github.com/segmentio/kafka-go"
)

// TransactionConsumer wraps the group consumer for the transaction topic.
type TransactionConsumer struct {
	reader *kafka.Reader
	logger *slog.Logger
}

func NewTransactionConsumer(logger *slog.Logger, cfg *config.KafkaConfig) *TransactionConsumer {
	return &TransactionConsumer{
		logger: logger,
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:     []string{cfg.Brokers},
			Topic:       cfg.TransactionTopic,
			GroupID:     cfg.ConsumerGroup,
			MinBytes:    cfg.MinBytes,
			MaxBytes:    cfg.MaxBytes,
			MaxWait:     cfg.MaxWait,
			StartOffset: kafka.FirstOffset,
		}),
	}
}

// Reader exposes the underlying kafka.Reader, which satisfies the stream
// reader's message fetcher.
func (c *TransactionConsumer) Reader() *kafka.Reader {
	return c.reader
}

func (c *TransactionConsumer) Close() error {
	c.logger.Info("Closing Kafka consumer", "topic", c.reader.Config().Topic)
	return c.reader.Close()
}
