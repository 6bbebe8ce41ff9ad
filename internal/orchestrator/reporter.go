package orchestrator

import (
	"context"

	"github.com/fraud-scoring-pipeline/internal/domain/transaction"
)

// Reporter receives the records a run could not process: source records that
// failed validation and transactions whose classification batch exhausted its
// retries. Reporting is best-effort; implementations must not fail the run.
type Reporter interface {
	ReportInvalid(ctx context.Context, records []*transaction.InvalidRecord)
	ReportFailed(ctx context.Context, txs []*transaction.Transaction)
}

// NopReporter discards everything.
type NopReporter struct{}

func (NopReporter) ReportInvalid(context.Context, []*transaction.InvalidRecord) {}
func (NopReporter) ReportFailed(context.Context, []*transaction.Transaction)    {}

// CompositeReporter fans out to every configured reporter.
type CompositeReporter []Reporter

func (c CompositeReporter) ReportInvalid(ctx context.Context, records []*transaction.InvalidRecord) {
	for _, r := range c {
		r.ReportInvalid(ctx, records)
	}
}

func (c CompositeReporter) ReportFailed(ctx context.Context, txs []*transaction.Transaction) {
	for _, r := range c {
		r.ReportFailed(ctx, txs)
	}
}
