// Package scoring is the client for the remote classification service. One
// call classifies one sub-batch of transactions; transport and server
// failures are retried with exponential backoff, and exhausting the retry
// budget demotes the whole sub-batch to the failed set.
package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/fraud-scoring-pipeline/internal/domain/transaction"
	"github.com/fraud-scoring-pipeline/internal/retry"
	"github.com/google/uuid"
)

// Classifier obtains predictions for a batch of transactions. A nil
// prediction slice signals total batch failure; the returned transactions are
// then the caller's failed set.
type Classifier interface {
	Classify(ctx context.Context, txs []*transaction.Transaction) ([]*transaction.Transaction, []*transaction.Prediction)
}

// predictionPayload is the wire shape of one prediction in the service
// response. The array cardinality always equals the request's.
type predictionPayload struct {
	TransactionID   string   `json:"transaction_id"`
	Category        string   `json:"category"`
	ConfidenceScore *float64 `json:"confidence_score"`
	ModelVersion    string   `json:"model_version"`
	PredictedAt     string   `json:"predicted_at"`
}

// Client implements Classifier over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	policy     *retry.Policy
	logger     *slog.Logger
}

func NewClient(baseURL string, timeout time.Duration, policy *retry.Policy, logger *slog.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		policy:     policy,
		logger:     logger,
	}
}

// Classify sends one request for the whole slice. On success the predictions
// are paired with the transactions sent; on terminal failure it returns
// (txs, nil) and the caller must not persist or re-dispatch them this run.
func (c *Client) Classify(ctx context.Context, txs []*transaction.Transaction) ([]*transaction.Transaction, []*transaction.Prediction) {
	var payloads []predictionPayload

	err := c.policy.Do(ctx, "classification call", func() error {
		result, callErr := c.call(ctx, txs)
		if callErr != nil {
			return callErr
		}
		payloads = result
		return nil
	})
	if err != nil {
		c.logger.Error("Classification batch failed after all retries", "count", len(txs), "error", err)
		return txs, nil
	}

	predictions, err := c.matchPredictions(txs, payloads)
	if err != nil {
		c.logger.Error("Classification response could not be matched", "count", len(txs), "error", err)
		return txs, nil
	}

	c.logger.Debug("Classified batch", "count", len(predictions))
	return txs, predictions
}

// call performs one HTTP round trip. Any non-2xx status is a retryable error.
func (c *Client) call(ctx context.Context, txs []*transaction.Transaction) ([]predictionPayload, error) {
	body, err := json.Marshal(txs)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal transactions: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/predict", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build scoring request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("scoring request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Drain so the connection can be reused
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("scoring service returned status %d", resp.StatusCode)
	}

	var payloads []predictionPayload
	if err := json.NewDecoder(resp.Body).Decode(&payloads); err != nil {
		return nil, fmt.Errorf("failed to decode scoring response: %w", err)
	}

	if len(payloads) != len(txs) {
		return nil, fmt.Errorf("scoring response cardinality mismatch: sent %d, got %d", len(txs), len(payloads))
	}

	return payloads, nil
}

// matchPredictions pairs the response with the request, by identity when the
// service echoes transaction ids and positionally otherwise.
func (c *Client) matchPredictions(txs []*transaction.Transaction, payloads []predictionPayload) ([]*transaction.Prediction, error) {
	byID := make(map[uuid.UUID]*transaction.Transaction, len(txs))
	for _, tx := range txs {
		byID[tx.ID] = tx
	}

	predictions := make([]*transaction.Prediction, 0, len(payloads))
	for i, payload := range payloads {
		if payload.Category == "" {
			return nil, fmt.Errorf("prediction %d has an empty category", i)
		}

		var txID uuid.UUID
		if payload.TransactionID != "" {
			parsed, err := uuid.Parse(payload.TransactionID)
			if err != nil {
				return nil, fmt.Errorf("prediction %d has an invalid transaction id %q: %w", i, payload.TransactionID, err)
			}
			if _, ok := byID[parsed]; !ok {
				return nil, fmt.Errorf("prediction %d references unknown transaction %s", i, parsed)
			}
			txID = parsed
		} else {
			// Positional fallback when the service omits identities
			txID = txs[i].ID
		}

		confidence := 1.0
		if payload.ConfidenceScore != nil {
			confidence = *payload.ConfidenceScore
		}

		modelVersion := payload.ModelVersion
		if modelVersion == "" {
			modelVersion = transaction.DefaultModelVersion
		}

		predictedAt := time.Now().UTC()
		if payload.PredictedAt != "" {
			if ts, err := time.Parse(time.RFC3339, payload.PredictedAt); err == nil {
				predictedAt = ts
			}
		}

		predictions = append(predictions, &transaction.Prediction{
			TransactionID:   txID,
			Category:        payload.Category,
			ConfidenceScore: confidence,
			ModelVersion:    modelVersion,
			PredictedAt:     predictedAt,
		})
	}

	return predictions, nil
}
