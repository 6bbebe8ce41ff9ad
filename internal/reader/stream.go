package reader

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/fraud-scoring-pipeline/internal/domain/transaction"
	"github.com/fraud-scoring-pipeline/internal/validation"
	"github.com/segmentio/kafka-go"
)

// MessageFetcher is the subset of kafka.Reader the stream reader needs.
type MessageFetcher interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// StreamConfig holds the micro-batching knobs of the adaptive reader.
type StreamConfig struct {
	PollTimeout            time.Duration // Per-poll bound on the broker fetch
	BufferTimeout          time.Duration // Max age of a non-empty window, measured from its first message
	MaxConsecutiveTimeouts int           // Empty polls tolerated on a non-empty window before a partial yield
}

// StreamReader polls the broker one message at a time and accumulates a
// window until the target size is reached, the window ages past the buffer
// timeout, or enough consecutive polls come back empty. The dual-timeout
// policy bounds worst-case latency under variable message rates while still
// batching for throughput when traffic is dense.
//
// Each Read produces an iterator that yields exactly one window and then
// exhausts; the caller re-invokes Read per window. Offsets are committed when
// the window is yielded.
type StreamReader struct {
	fetcher   MessageFetcher
	cfg       StreamConfig
	runID     string
	validator *validation.Validator
	stop      <-chan struct{}
	logger    *slog.Logger
}

// NewStreamReader creates the adaptive polling reader. Closing stop lets the
// current window finish: a non-empty window is yielded immediately, an empty
// one exhausts without yielding.
func NewStreamReader(
	fetcher MessageFetcher,
	cfg StreamConfig,
	runID string,
	validator *validation.Validator,
	stop <-chan struct{},
	logger *slog.Logger,
) *StreamReader {
	return &StreamReader{
		fetcher:   fetcher,
		cfg:       cfg,
		runID:     runID,
		validator: validator,
		stop:      stop,
		logger:    logger,
	}
}

func (r *StreamReader) Read(targetSize int) Iterator {
	return &streamIterator{reader: r, targetSize: targetSize}
}

type streamIterator struct {
	reader     *StreamReader
	targetSize int
	done       bool
}

func (it *streamIterator) Next(ctx context.Context) (*Window, error) {
	if it.done {
		return nil, nil
	}
	it.done = true
	return it.reader.readWindow(ctx, it.targetSize)
}

// readWindow accumulates one window. A nil window with nil error means the
// reader was stopped before any message arrived.
func (r *StreamReader) readWindow(ctx context.Context, targetSize int) (*Window, error) {
	var (
		rawRecords   []map[string]any
		decodeErrors []*transaction.InvalidRecord
		messages     []kafka.Message

		consecutiveTimeouts int
		firstMessageAt      time.Time
	)

	for len(rawRecords) < targetSize {
		if r.stopped() {
			break
		}

		// Time-based partial flush, measured from the first message
		if len(rawRecords) > 0 && time.Since(firstMessageAt) >= r.cfg.BufferTimeout {
			r.logger.Debug("Yielding partial window after buffer timeout",
				"elapsed", time.Since(firstMessageAt).String(),
				"messages", len(rawRecords),
			)
			break
		}

		msg, err := r.poll(ctx)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				consecutiveTimeouts++
				// Idle-based partial flush: empty polls only count against
				// a non-empty window
				if len(rawRecords) > 0 && consecutiveTimeouts >= r.cfg.MaxConsecutiveTimeouts {
					r.logger.Debug("Yielding partial window after consecutive empty polls",
						"consecutive_timeouts", consecutiveTimeouts,
						"messages", len(rawRecords),
					)
					break
				}
				continue
			}
			if ctx.Err() != nil {
				break
			}
			r.logger.Error("Failed to fetch message from broker", "error", err)
			continue
		}

		consecutiveTimeouts = 0
		if len(rawRecords) == 0 {
			firstMessageAt = time.Now()
		}
		messages = append(messages, msg)

		// An empty payload is a deserialization failure like any other
		if len(msg.Value) == 0 {
			r.logger.Warn("Received message with empty value",
				"partition", msg.Partition, "offset", msg.Offset)
			decodeErrors = append(decodeErrors, &transaction.InvalidRecord{
				Record: map[string]any{"raw": ""},
				Reason: "empty message payload",
			})
			continue
		}

		var raw map[string]any
		if err := json.Unmarshal(msg.Value, &raw); err != nil {
			r.logger.Warn("Invalid JSON in message", "partition", msg.Partition, "offset", msg.Offset, "error", err)
			decodeErrors = append(decodeErrors, &transaction.InvalidRecord{
				Record: map[string]any{"raw": string(msg.Value)},
				Reason: err.Error(),
			})
			continue
		}

		// Lineage is injected by the reader, never sourced from the message
		raw["run_id"] = r.runID
		raw["processing_type"] = string(transaction.ProcessingTypeStreaming)
		rawRecords = append(rawRecords, raw)
	}

	if len(rawRecords) == 0 && len(decodeErrors) == 0 {
		return nil, nil
	}

	valid, invalid := r.validator.ValidateRecords(rawRecords)
	// Deserialization failures are merged with schema failures before yielding
	invalid = append(invalid, decodeErrors...)

	if len(messages) > 0 {
		if err := r.fetcher.CommitMessages(ctx, messages...); err != nil {
			r.logger.Error("Failed to commit window offsets", "count", len(messages), "error", err)
		}
	}

	r.logger.Debug("Yielding window", "valid", len(valid), "invalid", len(invalid))
	return &Window{Valid: valid, Invalid: invalid}, nil
}

// poll fetches one message under the configured poll timeout.
func (r *StreamReader) poll(ctx context.Context) (kafka.Message, error) {
	pollCtx, cancel := context.WithTimeout(ctx, r.cfg.PollTimeout)
	defer cancel()
	return r.fetcher.FetchMessage(pollCtx)
}

func (r *StreamReader) stopped() bool {
	if r.stop == nil {
		return false
	}
	select {
	case <-r.stop:
		return true
	default:
		return false
	}
}
