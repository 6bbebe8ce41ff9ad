package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fraud-scoring-pipeline/internal/domain/transaction"
	"github.com/fraud-scoring-pipeline/internal/reader"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeTransactions(n int) []*transaction.Transaction {
	txs := make([]*transaction.Transaction, n)
	for i := range txs {
		txs[i] = &transaction.Transaction{
			ID:             uuid.New(),
			Description:    fmt.Sprintf("tx %d", i),
			Amount:         float64(i),
			Timestamp:      time.Date(2024, 3, 1, 10, 0, i, 0, time.UTC),
			OperationType:  "debit",
			Side:           "out",
			ProcessingType: transaction.ProcessingTypeBatch,
			RunID:          "batch_test",
		}
	}
	return txs
}

// fakeReader serves pre-built windows of at most targetSize valid rows each.
type fakeReader struct {
	valid   []*transaction.Transaction
	invalid []*transaction.InvalidRecord
}

type fakeIterator struct {
	windows []*reader.Window
}

func (r *fakeReader) Read(targetSize int) reader.Iterator {
	it := &fakeIterator{}
	first := true
	for start := 0; start < len(r.valid); start += targetSize {
		end := start + targetSize
		if end > len(r.valid) {
			end = len(r.valid)
		}
		w := &reader.Window{Valid: r.valid[start:end]}
		if first {
			w.Invalid = r.invalid
			first = false
		}
		it.windows = append(it.windows, w)
	}
	if len(it.windows) == 0 && len(r.invalid) > 0 {
		it.windows = append(it.windows, &reader.Window{Invalid: r.invalid})
	}
	return it
}

func (it *fakeIterator) Next(context.Context) (*reader.Window, error) {
	if len(it.windows) == 0 {
		return nil, nil
	}
	w := it.windows[0]
	it.windows = it.windows[1:]
	return w, nil
}

// fakeClassifier succeeds by default; failEvery > 0 fails every Nth call.
type fakeClassifier struct {
	calls     atomic.Int32
	failEvery int32
}

func (c *fakeClassifier) Classify(_ context.Context, txs []*transaction.Transaction) ([]*transaction.Transaction, []*transaction.Prediction) {
	call := c.calls.Add(1)
	if c.failEvery > 0 && call%c.failEvery == 0 {
		return txs, nil
	}

	preds := make([]*transaction.Prediction, len(txs))
	for i, tx := range txs {
		preds[i] = &transaction.Prediction{
			TransactionID:   tx.ID,
			Category:        "legitimate",
			ConfidenceScore: 0.9,
			ModelVersion:    transaction.DefaultModelVersion,
			PredictedAt:     time.Now().UTC(),
		}
	}
	return txs, preds
}

// fakeSink records flush sizes and truncates like the real sink.
type fakeSink struct {
	mu          sync.Mutex
	flushSizes  []int
	totalRows   int
	failFlushes bool
}

func (s *fakeSink) Flush(_ context.Context, buf *transaction.Buffers) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failFlushes {
		return errors.New("database unavailable")
	}

	s.flushSizes = append(s.flushSizes, len(buf.Transactions))
	s.totalRows += len(buf.Transactions)
	buf.Transactions = buf.Transactions[:0]
	buf.Predictions = buf.Predictions[:0]
	return nil
}

type recordingReporter struct {
	mu      sync.Mutex
	invalid []*transaction.InvalidRecord
	failed  []*transaction.Transaction
}

func (r *recordingReporter) ReportInvalid(_ context.Context, records []*transaction.InvalidRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invalid = append(r.invalid, records...)
}

func (r *recordingReporter) ReportFailed(_ context.Context, txs []*transaction.Transaction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed = append(r.failed, txs...)
}

func newOrchestrator(t *testing.T, cfg Config, rdr reader.Reader, classifier *fakeClassifier, sink *fakeSink, reporter Reporter) *Orchestrator {
	t.Helper()
	o, err := New(cfg, rdr, classifier, sink, reporter, slog.Default())
	require.NoError(t, err)
	t.Cleanup(o.Close)
	return o
}

func TestOrchestrator_SmallRunSingleFinalFlush(t *testing.T) {
	// 10 valid rows, windows of 5, classification batches of 3, flush at 20:
	// four classification calls and exactly one flush, the final one.
	rdr := &fakeReader{valid: makeTransactions(10)}
	classifier := &fakeClassifier{}
	sink := &fakeSink{}

	o := newOrchestrator(t, Config{
		RowBatchSize:   5,
		APIBatchSize:   3,
		APIMaxWorkers:  2,
		DBRowBatchSize: 20,
	}, rdr, classifier, sink, nil)

	summary, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 10, summary.Processed)
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, 0, summary.Invalid)
	assert.EqualValues(t, 4, classifier.calls.Load())
	assert.Equal(t, []int{10}, sink.flushSizes)
}

func TestOrchestrator_ThresholdFlushesMidWindow(t *testing.T) {
	// 25 valid rows, windows of 15, classification batches of 5, flush at 10:
	// five classification calls and three flushes of 10, 10 and 5 rows.
	rdr := &fakeReader{valid: makeTransactions(25)}
	classifier := &fakeClassifier{}
	sink := &fakeSink{}

	o := newOrchestrator(t, Config{
		RowBatchSize:   15,
		APIBatchSize:   5,
		APIMaxWorkers:  3,
		DBRowBatchSize: 10,
	}, rdr, classifier, sink, nil)

	summary, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 25, summary.Processed)
	assert.EqualValues(t, 5, classifier.calls.Load())
	assert.Equal(t, []int{10, 10, 5}, sink.flushSizes)
	assert.Equal(t, 25, sink.totalRows)
}

func TestOrchestrator_FailedBatchesAreDemotedNotPersisted(t *testing.T) {
	rdr := &fakeReader{valid: makeTransactions(20)}
	classifier := &fakeClassifier{failEvery: 2} // Every second call fails terminally
	sink := &fakeSink{}
	reporter := &recordingReporter{}

	o := newOrchestrator(t, Config{
		RowBatchSize:   20,
		APIBatchSize:   5,
		APIMaxWorkers:  1,
		DBRowBatchSize: 100,
	}, rdr, classifier, sink, reporter)

	summary, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 10, summary.Processed)
	assert.Equal(t, 10, summary.Failed)
	assert.Equal(t, summary.Processed+summary.Failed, 20)
	assert.Equal(t, 10, sink.totalRows) // Failed rows never reach the sink
	assert.Len(t, reporter.failed, 10)
}

func TestOrchestrator_InvalidRecordsCountedAndReported(t *testing.T) {
	rdr := &fakeReader{
		valid: makeTransactions(3),
		invalid: []*transaction.InvalidRecord{
			{Record: map[string]any{"description": "no amount"}, Reason: "missing required field amount"},
			{Record: map[string]any{}, Reason: "missing required field description"},
		},
	}
	classifier := &fakeClassifier{}
	sink := &fakeSink{}
	reporter := &recordingReporter{}

	o := newOrchestrator(t, Config{
		RowBatchSize:   10,
		APIBatchSize:   10,
		APIMaxWorkers:  1,
		DBRowBatchSize: 100,
	}, rdr, classifier, sink, reporter)

	summary, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Processed)
	assert.Equal(t, 2, summary.Invalid)
	assert.Len(t, reporter.invalid, 2)
}

func TestOrchestrator_AllInvalidWindowStillReported(t *testing.T) {
	rdr := &fakeReader{
		invalid: []*transaction.InvalidRecord{
			{Record: map[string]any{}, Reason: "missing required field id"},
		},
	}
	classifier := &fakeClassifier{}
	sink := &fakeSink{}
	reporter := &recordingReporter{}

	o := newOrchestrator(t, Config{
		RowBatchSize:   10,
		APIBatchSize:   10,
		APIMaxWorkers:  1,
		DBRowBatchSize: 100,
	}, rdr, classifier, sink, reporter)

	summary, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, summary.Processed)
	assert.Equal(t, 1, summary.Invalid)
	assert.EqualValues(t, 0, classifier.calls.Load())
	assert.Empty(t, sink.flushSizes)
	assert.Len(t, reporter.invalid, 1)
}

func TestOrchestrator_FlushFailureIsFatal(t *testing.T) {
	rdr := &fakeReader{valid: makeTransactions(10)}
	classifier := &fakeClassifier{}
	sink := &fakeSink{failFlushes: true}

	o := newOrchestrator(t, Config{
		RowBatchSize:   10,
		APIBatchSize:   5,
		APIMaxWorkers:  2,
		DBRowBatchSize: 5,
	}, rdr, classifier, sink, nil)

	_, err := o.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "flush failed")
}
