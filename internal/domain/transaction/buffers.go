package transaction

// Buffers accumulates classified results toward a persistence flush. The
// orchestrator owns the buffers; the sink receives them by reference and
// truncates them in place after a successful write, returning ownership.
type Buffers struct {
	Transactions []*Transaction
	Predictions  []*Prediction
}

// Append folds one classified sub-batch into the buffers.
func (b *Buffers) Append(txs []*Transaction, preds []*Prediction) {
	b.Transactions = append(b.Transactions, txs...)
	b.Predictions = append(b.Predictions, preds...)
}

// ShouldFlush reports whether either buffer has reached the threshold.
func (b *Buffers) ShouldFlush(threshold int) bool {
	return len(b.Transactions) >= threshold || len(b.Predictions) >= threshold
}

// Empty reports whether both buffers hold nothing.
func (b *Buffers) Empty() bool {
	return len(b.Transactions) == 0 && len(b.Predictions) == 0
}
