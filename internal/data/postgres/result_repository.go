// Package postgres provides the PostgreSQL persistence sink for classified
// transactions. Writes are conflict-aware bulk statements: transactions are
// inserted idempotently, predictions are upserted with last-write-wins
// semantics.
package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/fraud-scoring-pipeline/internal/domain/transaction"
	"github.com/fraud-scoring-pipeline/internal/platform/persistence"
	"github.com/fraud-scoring-pipeline/internal/retry"
	"github.com/jackc/pgx/v5"
)

// ResultRepository writes accumulated transactions and predictions. Both
// statements are retried with the shared backoff policy; exhausting the
// budget is fatal and propagates so the surrounding store transaction rolls
// back.
type ResultRepository struct {
	querier persistence.Querier // Can be *pgxpool.Pool or pgx.Tx
	policy  *retry.Policy
	logger  *slog.Logger
}

// NewResultRepository creates a new PostgreSQL result repository bound to the
// connection pool.
func NewResultRepository(logger *slog.Logger, db *persistence.PostgresDB, policy *retry.Policy) *ResultRepository {
	return &ResultRepository{
		querier: db.Pool(),
		policy:  policy,
		logger:  logger,
	}
}

// WithTx binds the repository to a transaction so all writes of one run (or
// one window pass) share an atomic boundary.
func (r *ResultRepository) WithTx(tx pgx.Tx) *ResultRepository {
	return &ResultRepository{
		querier: tx,
		policy:  r.policy,
		logger:  r.logger,
	}
}

// Flush persists the buffered transactions and predictions, truncating each
// buffer in place after its write succeeds. Replaying a flush never
// duplicates rows: transactions conflict-skip on identity, predictions
// overwrite on transaction identity.
//
// When the repository is tx-bound, a statement error aborts the enclosing
// transaction and the remaining attempts fail immediately with "current
// transaction is aborted", so the backoff budget only smooths over transient
// faults on the pool-bound path. Either way the exhausted error propagates
// and the caller's transaction rolls back.
func (r *ResultRepository) Flush(ctx context.Context, buf *transaction.Buffers) error {
	if len(buf.Transactions) > 0 {
		err := r.policy.Do(ctx, "transaction bulk insert", func() error {
			return r.bulkInsertTransactions(ctx, buf.Transactions)
		})
		if err != nil {
			return err
		}
		r.logger.Info("Persisted transactions", "count", len(buf.Transactions))
		buf.Transactions = buf.Transactions[:0]
	}

	if len(buf.Predictions) > 0 {
		err := r.policy.Do(ctx, "prediction bulk upsert", func() error {
			return r.bulkUpsertPredictions(ctx, buf.Predictions)
		})
		if err != nil {
			return err
		}
		r.logger.Info("Persisted predictions", "count", len(buf.Predictions))
		buf.Predictions = buf.Predictions[:0]
	}

	return nil
}

// bulkInsertTransactions inserts with ON CONFLICT DO NOTHING so re-running a
// window with identities already present adds no rows and raises no error.
func (r *ResultRepository) bulkInsertTransactions(ctx context.Context, txs []*transaction.Transaction) error {
	const columns = 9

	values := make([]string, 0, len(txs))
	args := make([]any, 0, len(txs)*columns)
	for i, tx := range txs {
		base := i * columns
		values = append(values, fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9))
		args = append(args,
			tx.ID,
			tx.Description,
			tx.Amount,
			tx.Timestamp,
			tx.Merchant,
			tx.OperationType,
			tx.Side,
			string(tx.ProcessingType),
			tx.RunID,
		)
	}

	query := fmt.Sprintf(`
		INSERT INTO transactions (id, description, amount, timestamp, merchant, operation_type, side, processing_type, run_id)
		VALUES %s
		ON CONFLICT (id) DO NOTHING
	`, strings.Join(values, ", "))

	tag, err := r.querier.Exec(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to bulk insert transactions", "count", len(txs), "error", err)
		return fmt.Errorf("failed to bulk insert transactions: %w", err)
	}

	skipped := int64(len(txs)) - tag.RowsAffected()
	if skipped > 0 {
		r.logger.Debug("Skipped duplicate transactions on insert", "skipped", skipped)
	}

	return nil
}

// bulkUpsertPredictions inserts or, on transaction-identity conflict,
// overwrites every mutable field with the new values.
func (r *ResultRepository) bulkUpsertPredictions(ctx context.Context, preds []*transaction.Prediction) error {
	const columns = 5

	values := make([]string, 0, len(preds))
	args := make([]any, 0, len(preds)*columns)
	for i, pred := range preds {
		base := i * columns
		values = append(values, fmt.Sprintf("($%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5))
		args = append(args,
			pred.TransactionID,
			pred.Category,
			pred.ConfidenceScore,
			pred.ModelVersion,
			pred.PredictedAt,
		)
	}

	query := fmt.Sprintf(`
		INSERT INTO predictions (transaction_id, category, confidence_score, model_version, predicted_at)
		VALUES %s
		ON CONFLICT (transaction_id) DO UPDATE SET
			category = EXCLUDED.category,
			confidence_score = EXCLUDED.confidence_score,
			model_version = EXCLUDED.model_version,
			predicted_at = EXCLUDED.predicted_at
	`, strings.Join(values, ", "))

	if _, err := r.querier.Exec(ctx, query, args...); err != nil {
		r.logger.Error("Failed to bulk upsert predictions", "count", len(preds), "error", err)
		return fmt.Errorf("failed to bulk upsert predictions: %w", err)
	}

	return nil
}
