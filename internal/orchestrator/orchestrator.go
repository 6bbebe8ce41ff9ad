// Package orchestrator drives a run end to end: it pulls validated windows
// from a reader, fans sub-batches out to the classification service through a
// worker pool, folds results back in completion order, and flushes the
// accumulated buffers through the persistence sink whenever they reach the
// flush threshold.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fraud-scoring-pipeline/internal/domain/transaction"
	"github.com/fraud-scoring-pipeline/internal/reader"
	"github.com/fraud-scoring-pipeline/internal/scoring"
	"github.com/panjf2000/ants/v2"
)

// Sink persists the accumulated buffers, truncating them in place on
// success. A sink error is fatal for the run.
type Sink interface {
	Flush(ctx context.Context, buf *transaction.Buffers) error
}

// Config carries the three independent batch sizes plus the classification
// concurrency ceiling.
type Config struct {
	RowBatchSize   int // Source window size requested from the reader
	APIBatchSize   int // Transactions per classification call
	APIMaxWorkers  int // Concurrent classification calls
	DBRowBatchSize int // Buffered rows that trigger a flush
}

// Summary is the outcome of one run. Processed and Failed partition the valid
// transactions; Invalid counts source records rejected before classification.
type Summary struct {
	Processed int
	Failed    int
	Invalid   int
}

type Orchestrator struct {
	cfg        Config
	reader     reader.Reader
	classifier scoring.Classifier
	sink       Sink
	reporter   Reporter
	pool       *ants.Pool
	logger     *slog.Logger
}

func New(
	cfg Config,
	rdr reader.Reader,
	classifier scoring.Classifier,
	sink Sink,
	reporter Reporter,
	logger *slog.Logger,
) (*Orchestrator, error) {
	pool, err := ants.NewPool(cfg.APIMaxWorkers)
	if err != nil {
		return nil, fmt.Errorf("failed to create classification worker pool: %w", err)
	}

	if reporter == nil {
		reporter = NopReporter{}
	}

	return &Orchestrator{
		cfg:        cfg,
		reader:     rdr,
		classifier: classifier,
		sink:       sink,
		reporter:   reporter,
		pool:       pool,
		logger:     logger,
	}, nil
}

// Close releases the worker pool. Call after the last Run.
func (o *Orchestrator) Close() {
	o.pool.Release()
}

// subBatchResult is what one classification task folds back in. A nil
// prediction slice marks the whole sub-batch as failed.
type subBatchResult struct {
	txs   []*transaction.Transaction
	preds []*transaction.Prediction
}

// Run processes windows until the reader is exhausted, then performs the
// final flush. The returned summary is valid even when err is non-nil and
// reflects the work completed up to the failure.
func (o *Orchestrator) Run(ctx context.Context) (*Summary, error) {
	summary := &Summary{}
	buf := &transaction.Buffers{}

	it := o.reader.Read(o.cfg.RowBatchSize)
	for {
		window, err := it.Next(ctx)
		if err != nil {
			return summary, fmt.Errorf("failed to read window: %w", err)
		}
		if window == nil {
			break
		}

		if err := o.processWindow(ctx, window, buf, summary); err != nil {
			return summary, err
		}
	}

	if !buf.Empty() {
		if err := o.sink.Flush(ctx, buf); err != nil {
			return summary, fmt.Errorf("final flush failed: %w", err)
		}
	}

	o.logger.Info("Run complete",
		"processed", summary.Processed,
		"failed", summary.Failed,
		"invalid", summary.Invalid,
	)
	return summary, nil
}

// processWindow classifies one window's valid transactions and folds the
// results into the buffers. It returns only after every submitted sub-batch
// has completed, so windows never overlap.
func (o *Orchestrator) processWindow(ctx context.Context, window *reader.Window, buf *transaction.Buffers, summary *Summary) error {
	if len(window.Invalid) > 0 {
		summary.Invalid += len(window.Invalid)
		o.reporter.ReportInvalid(ctx, window.Invalid)
	}
	if len(window.Valid) == 0 {
		return nil
	}

	subBatches := splitBatches(window.Valid, o.cfg.APIBatchSize)
	o.logger.Debug("Dispatching window",
		"valid", len(window.Valid),
		"invalid", len(window.Invalid),
		"sub_batches", len(subBatches),
	)

	// Buffered to full capacity so workers never block on send, even when
	// folding aborts early on a fatal flush error.
	results := make(chan subBatchResult, len(subBatches))

	var submitted int
	var submitErr error
	for _, sub := range subBatches {
		sub := sub
		if err := o.pool.Submit(func() {
			txs, preds := o.classifier.Classify(ctx, sub)
			results <- subBatchResult{txs: txs, preds: preds}
		}); err != nil {
			submitErr = fmt.Errorf("failed to submit classification batch: %w", err)
			break
		}
		submitted++
	}

	// Fold in completion order; a flush fires as soon as the threshold is
	// crossed instead of waiting for the window barrier.
	var foldErr error
	for i := 0; i < submitted; i++ {
		res := <-results

		if foldErr != nil {
			continue // Draining only, the run is already failed
		}

		if res.preds == nil {
			summary.Failed += len(res.txs)
			o.reporter.ReportFailed(ctx, res.txs)
			continue
		}

		summary.Processed += len(res.txs)
		buf.Append(res.txs, res.preds)

		if buf.ShouldFlush(o.cfg.DBRowBatchSize) {
			if err := o.sink.Flush(ctx, buf); err != nil {
				foldErr = fmt.Errorf("flush failed: %w", err)
			}
		}
	}

	if foldErr != nil {
		return foldErr
	}
	return submitErr
}

// splitBatches slices txs into consecutive sub-batches of at most size.
func splitBatches(txs []*transaction.Transaction, size int) [][]*transaction.Transaction {
	if size <= 0 {
		size = len(txs)
	}

	batches := make([][]*transaction.Transaction, 0, (len(txs)+size-1)/size)
	for start := 0; start < len(txs); start += size {
		end := start + size
		if end > len(txs) {
			end = len(txs)
		}
		batches = append(batches, txs[start:end])
	}
	return batches
}
