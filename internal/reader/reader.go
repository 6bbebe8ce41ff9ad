// Package reader produces windows of validated records from the two physical
// sources: a bulk object-storage file and a message-broker topic. Both
// variants satisfy the same contract; the orchestrator never knows which one
// it is driving.
package reader

import (
	"context"

	"github.com/fraud-scoring-pipeline/internal/domain/transaction"
)

// Window is one unit of reader output: the validator's partition of one chunk
// of raw input. It exists only in memory for the duration of processing.
type Window struct {
	Valid   []*transaction.Transaction
	Invalid []*transaction.InvalidRecord
}

// Reader yields a lazy, forward-only sequence of windows. The sequence is
// consumed exactly once; restarting means re-invoking Read.
type Reader interface {
	Read(targetSize int) Iterator
}

// Iterator walks the window sequence. Next returns (nil, nil) once the
// sequence is exhausted. Errors are source-level failures and terminate the
// sequence.
type Iterator interface {
	Next(ctx context.Context) (*Window, error)
}
