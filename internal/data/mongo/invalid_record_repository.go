package mongo

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/fraud-scoring-pipeline/internal/domain/transaction"
)

const (
	// InvalidRecordCollectionName is the name of the audit collection in MongoDB
	InvalidRecordCollectionName = "invalid_records"
)

// invalidRecordDocument is the stored shape of one rejected source record.
type invalidRecordDocument struct {
	RunID      string         `bson:"run_id"`
	Reason     string         `bson:"reason"`
	Record     map[string]any `bson:"record"`
	RecordedAt time.Time      `bson:"recorded_at"`
}

// InvalidRecordRepository archives records that failed validation so a run's
// rejects can be inspected after the fact. The store is an audit trail only:
// callers treat write failures as non-fatal.
type InvalidRecordRepository struct {
	db     *mongo.Database
	logger *slog.Logger
}

// NewInvalidRecordRepository creates a new MongoDB invalid record repository
func NewInvalidRecordRepository(logger *slog.Logger, db *mongo.Database) *InvalidRecordRepository {
	return &InvalidRecordRepository{
		db:     db,
		logger: logger,
	}
}

// RecordBatch archives one window's rejects under the run they belong to.
func (r *InvalidRecordRepository) RecordBatch(ctx context.Context, runID string, records []*transaction.InvalidRecord) error {
	if len(records) == 0 {
		return nil
	}

	now := time.Now().UTC()
	docs := make([]interface{}, 0, len(records))
	for _, rec := range records {
		docs = append(docs, invalidRecordDocument{
			RunID:      runID,
			Reason:     rec.Reason,
			Record:     rec.Record,
			RecordedAt: now,
		})
	}

	collection := r.db.Collection(InvalidRecordCollectionName)
	if _, err := collection.InsertMany(ctx, docs); err != nil {
		r.logger.Error("Failed to archive invalid records",
			"run_id", runID,
			"count", len(records),
			"error", err)
		return fmt.Errorf("failed to archive invalid records: %w", err)
	}

	r.logger.Debug("Archived invalid records", "run_id", runID, "count", len(records))
	return nil
}

// RunReporter binds the repository to one run so it can plug in as a
// reporter. Audit writes are best-effort and errors are swallowed.
type RunReporter struct {
	repo  *InvalidRecordRepository
	runID string
}

// ForRun returns a reporter scoped to runID.
func (r *InvalidRecordRepository) ForRun(runID string) *RunReporter {
	return &RunReporter{repo: r, runID: runID}
}

func (r *RunReporter) ReportInvalid(ctx context.Context, records []*transaction.InvalidRecord) {
	_ = r.repo.RecordBatch(ctx, r.runID, records)
}

// ReportFailed is a no-op: the audit trail covers validation rejects only,
// failed classifications go to the dead letter topic with full lineage.
func (r *RunReporter) ReportFailed(context.Context, []*transaction.Transaction) {}
