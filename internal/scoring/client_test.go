package scoring

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fraud-scoring-pipeline/internal/domain/transaction"
	"github.com/fraud-scoring-pipeline/internal/retry"
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
			Amount:         float64(i) + 0.5,
			Timestamp:      time.Date(2024, 3, 1, 10, 0, i, 0, time.UTC),
			OperationType:  "debit",
			Side:           "out",
			ProcessingType: transaction.ProcessingTypeBatch,
			RunID:          "run",
		}
	}
	return txs
}

func newTestClient(url string, maxRetries int) *Client {
	policy := retry.NewPolicy(maxRetries, time.Millisecond, slog.Default())
	return NewClient(url, 5*time.Second, policy, slog.Default())
}

func TestClient_ClassifySuccess_MatchedByIdentity(t *testing.T) {
	txs := makeTransactions(3)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/predict", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var received []map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		require.Len(t, received, 3)

		// Respond in reverse order to prove identity matching
		resp := make([]map[string]any, 0, len(txs))
		for i := len(txs) - 1; i >= 0; i-- {
			resp = append(resp, map[string]any{
				"transaction_id":   txs[i].ID.String(),
				"category":         "legitimate",
				"confidence_score": 0.92,
				"model_version":    "v2.1",
			})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := newTestClient(server.URL, 1)
	succeeded, preds := client.Classify(context.Background(), txs)

	require.Len(t, preds, 3)
	assert.Equal(t, txs, succeeded)
	assert.Equal(t, txs[2].ID, preds[0].TransactionID)
	assert.Equal(t, "legitimate", preds[0].Category)
	assert.Equal(t, 0.92, preds[0].ConfidenceScore)
	assert.Equal(t, "v2.1", preds[0].ModelVersion)
}

func TestClient_ClassifySuccess_PositionalFallback(t *testing.T) {
	txs := makeTransactions(2)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"category": "fraud"},
			{"category": "legitimate"},
		})
	}))
	defer server.Close()

	client := newTestClient(server.URL, 1)
	_, preds := client.Classify(context.Background(), txs)

	require.Len(t, preds, 2)
	assert.Equal(t, txs[0].ID, preds[0].TransactionID)
	assert.Equal(t, txs[1].ID, preds[1].TransactionID)
	// Defaults applied when the service omits them
	assert.Equal(t, 1.0, preds[0].ConfidenceScore)
	assert.Equal(t, transaction.DefaultModelVersion, preds[0].ModelVersion)
	assert.False(t, preds[0].PredictedAt.IsZero())
}

func TestClient_RetriesThenSucceeds(t *testing.T) {
	txs := makeTransactions(1)

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"transaction_id": txs[0].ID.String(), "category": "fraud"},
		})
	}))
	defer server.Close()

	client := newTestClient(server.URL, 3)
	succeeded, preds := client.Classify(context.Background(), txs)

	assert.EqualValues(t, 3, calls.Load())
	require.Len(t, preds, 1)
	assert.Equal(t, txs, succeeded)
}

func TestClient_ExhaustedRetriesSignalBatchFailure(t *testing.T) {
	txs := makeTransactions(4)

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newTestClient(server.URL, 3)
	failed, preds := client.Classify(context.Background(), txs)

	assert.EqualValues(t, 3, calls.Load())
	assert.Nil(t, preds)
	assert.Equal(t, txs, failed) // Original transactions come back for the failed set
}

func TestClient_CardinalityMismatchFailsBatch(t *testing.T) {
	txs := makeTransactions(3)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode([]map[string]any{{"category": "fraud"}})
	}))
	defer server.Close()

	client := newTestClient(server.URL, 2)
	failed, preds := client.Classify(context.Background(), txs)

	assert.Nil(t, preds)
	assert.Equal(t, txs, failed)
}

func TestClient_TransportErrorFailsBatch(t *testing.T) {
	txs := makeTransactions(1)

	client := newTestClient("http://127.0.0.1:1", 2)
	failed, preds := client.Classify(context.Background(), txs)

	assert.Nil(t, preds)
	assert.Equal(t, txs, failed)
}
