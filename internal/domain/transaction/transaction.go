// Package transaction defines the core data model of the scoring pipeline:
// validated transactions, their classification predictions and the invalid
// records rejected during validation.
package transaction

import (
	"time"

	"github.com/google/uuid"
)

// ProcessingType records which pipeline variant produced a transaction
type ProcessingType string

const (
	ProcessingTypeBatch     ProcessingType = "batch"
	ProcessingTypeStreaming ProcessingType = "streaming"
)

// DefaultModelVersion is used when the scoring service omits a model version.
const DefaultModelVersion = "v1.0"

// Transaction is a validated record on its way to classification and
// persistence. ID is assigned exactly once at validation time and is never
// derived from input.
type Transaction struct {
	ID            uuid.UUID `json:"id"`
	Description   string    `json:"description"`
	Amount        float64   `json:"amount"`
	Timestamp     time.Time `json:"timestamp"`
	Merchant      string    `json:"merchant,omitempty"`
	OperationType string    `json:"operation_type"`
	Side          string    `json:"side"`

	// Lineage tracking fields
	ProcessingType ProcessingType `json:"processing_type"`
	RunID          string         `json:"run_id"`
}

// Prediction is the classification result for one transaction. At most one
// live prediction exists per transaction identity; re-writing replaces it.
type Prediction struct {
	TransactionID   uuid.UUID `json:"transaction_id"`
	Category        string    `json:"category"`
	ConfidenceScore float64   `json:"confidence_score"`
	ModelVersion    string    `json:"model_version"`
	PredictedAt     time.Time `json:"predicted_at"`
}

// InvalidRecord carries a rejected raw record together with the failure
// reason. Invalid records are reported, never written to the relational store.
type InvalidRecord struct {
	Record map[string]any `json:"record"`
	Reason string         `json:"reason"`
}
