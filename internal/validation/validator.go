// Package validation normalizes raw mapping records into validated
// transactions. Every valid record receives a fresh server-generated identity;
// any caller-supplied id is discarded. Failures are local: an invalid record
// is reported and dropped, never aborting the batch.
package validation

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/fraud-scoring-pipeline/internal/domain/transaction"
	"github.com/google/uuid"
)

// timestampLayouts are the accepted input encodings, tried in order. All are
// normalized to time.Time for canonical storage.
var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
}

// failureLogSample bounds how many per-call validation failures are logged.
const failureLogSample = 5

type Validator struct {
	logger *slog.Logger
}

func NewValidator(logger *slog.Logger) *Validator {
	return &Validator{logger: logger}
}

// ValidateRecords partitions raw records into validated transactions and
// invalid records. Any field-level failure routes the whole record to the
// invalid set; unrecognized extra fields are ignored.
func (v *Validator) ValidateRecords(records []map[string]any) ([]*transaction.Transaction, []*transaction.InvalidRecord) {
	valid := make([]*transaction.Transaction, 0, len(records))
	var invalid []*transaction.InvalidRecord

	for _, record := range records {
		tx, err := validateRecord(record)
		if err != nil {
			invalid = append(invalid, &transaction.InvalidRecord{Record: record, Reason: err.Error()})
			if len(invalid) <= failureLogSample {
				v.logger.Warn("Validation failed for record", "error", err)
			}
			continue
		}
		valid = append(valid, tx)
	}

	v.logger.Debug("Validation complete", "valid", len(valid), "invalid", len(invalid))
	if len(invalid) > 0 {
		v.logger.Warn("Found invalid transactions", "count", len(invalid))
	}

	return valid, invalid
}

// validateRecord checks all required fields and assigns a fresh identity.
// The incoming "id" field, if any, is intentionally never read.
func validateRecord(record map[string]any) (*transaction.Transaction, error) {
	description, err := requiredString(record, "description")
	if err != nil {
		return nil, err
	}

	amount, err := parseAmount(record)
	if err != nil {
		return nil, err
	}

	timestamp, err := parseTimestamp(record)
	if err != nil {
		return nil, err
	}

	operationType, err := requiredString(record, "operation_type")
	if err != nil {
		return nil, err
	}

	side, err := requiredString(record, "side")
	if err != nil {
		return nil, err
	}

	processingType, err := parseProcessingType(record)
	if err != nil {
		return nil, err
	}

	runID, err := requiredString(record, "run_id")
	if err != nil {
		return nil, err
	}

	// merchant is the only optional field
	merchant, _ := optionalString(record, "merchant")

	return &transaction.Transaction{
		ID:             uuid.New(),
		Description:    description,
		Amount:         amount,
		Timestamp:      timestamp,
		Merchant:       merchant,
		OperationType:  operationType,
		Side:           side,
		ProcessingType: processingType,
		RunID:          runID,
	}, nil
}

func requiredString(record map[string]any, field string) (string, error) {
	raw, ok := record[field]
	if !ok || raw == nil {
		return "", fmt.Errorf("missing required field %q", field)
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("field %q must be a string, got %T", field, raw)
	}
	if s == "" {
		return "", fmt.Errorf("field %q must not be empty", field)
	}
	return s, nil
}

func optionalString(record map[string]any, field string) (string, bool) {
	raw, ok := record[field]
	if !ok || raw == nil {
		return "", false
	}
	s, ok := raw.(string)
	return s, ok
}

// parseAmount accepts the numeric encodings the two sources produce: JSON
// numbers from the broker and strings from the CSV, where the decimal
// separator may be a comma.
func parseAmount(record map[string]any) (float64, error) {
	raw, ok := record["amount"]
	if !ok || raw == nil {
		return 0, fmt.Errorf("missing required field %q", "amount")
	}

	switch value := raw.(type) {
	case float64:
		return value, nil
	case float32:
		return float64(value), nil
	case int:
		return float64(value), nil
	case int64:
		return float64(value), nil
	case json.Number:
		f, err := value.Float64()
		if err != nil {
			return 0, fmt.Errorf("field %q is not numeric: %w", "amount", err)
		}
		return f, nil
	case string:
		normalized := strings.Replace(value, ",", ".", 1)
		f, err := strconv.ParseFloat(normalized, 64)
		if err != nil {
			return 0, fmt.Errorf("field %q is not numeric: %q", "amount", value)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("field %q must be numeric, got %T", "amount", raw)
	}
}

func parseTimestamp(record map[string]any) (time.Time, error) {
	raw, err := requiredString(record, "timestamp")
	if err != nil {
		return time.Time{}, err
	}

	for _, layout := range timestampLayouts {
		if ts, parseErr := time.Parse(layout, raw); parseErr == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp format: %q", raw)
}

func parseProcessingType(record map[string]any) (transaction.ProcessingType, error) {
	raw, err := requiredString(record, "processing_type")
	if err != nil {
		return "", err
	}

	pt := transaction.ProcessingType(raw)
	if pt != transaction.ProcessingTypeBatch && pt != transaction.ProcessingTypeStreaming {
		return "", fmt.Errorf("field %q must be %q or %q, got %q",
			"processing_type", transaction.ProcessingTypeBatch, transaction.ProcessingTypeStreaming, raw)
	}
	return pt, nil
}
