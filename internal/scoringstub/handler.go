package scoringstub

import (
	"hash/fnv"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

var categories = []string{
	"groceries",
	"transport",
	"dining",
	"utilities",
	"entertainment",
	"health",
	"shopping",
	"transfer",
	"other",
}

// keywordCategories short-circuits the hash for descriptions with an obvious
// match, so repeated runs against sample data look plausible.
var keywordCategories = map[string]string{
	"carrefour":  "groceries",
	"auchan":     "groceries",
	"supermarch": "groceries",
	"sncf":       "transport",
	"uber":       "transport",
	"essence":    "transport",
	"restaurant": "dining",
	"edf":        "utilities",
	"netflix":    "entertainment",
	"pharmacie":  "health",
	"virement":   "transfer",
}

type transactionPayload struct {
	ID          string  `json:"id"`
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
}

type predictionResponse struct {
	TransactionID   string  `json:"transaction_id"`
	Category        string  `json:"category"`
	ConfidenceScore float64 `json:"confidence_score"`
	ModelVersion    string  `json:"model_version"`
	PredictedAt     string  `json:"predicted_at"`
}

type predictHandler struct {
	logger *slog.Logger
}

func newPredictHandler(logger *slog.Logger) *predictHandler {
	return &predictHandler{logger: logger}
}

// Predict returns one prediction per transaction, in request order.
func (h *predictHandler) Predict(c *gin.Context) {
	var txs []transactionPayload
	if err := c.ShouldBindJSON(&txs); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "INVALID_REQUEST",
				"message": "request body must be a JSON array of transactions",
			},
		})
		return
	}

	now := time.Now().UTC().Format(time.RFC3339)
	predictions := make([]predictionResponse, 0, len(txs))
	for _, tx := range txs {
		category, confidence := classify(tx.Description)
		predictions = append(predictions, predictionResponse{
			TransactionID:   tx.ID,
			Category:        category,
			ConfidenceScore: confidence,
			ModelVersion:    "v1.0",
			PredictedAt:     now,
		})
	}

	h.logger.Debug("Classified batch", "count", len(predictions))
	c.JSON(http.StatusOK, predictions)
}

// classify derives a stable category and confidence from the description, so
// the same input always scores the same way.
func classify(description string) (string, float64) {
	lowered := strings.ToLower(description)
	for keyword, category := range keywordCategories {
		if strings.Contains(lowered, keyword) {
			return category, 0.95
		}
	}

	h := fnv.New32a()
	_, _ = h.Write([]byte(lowered))
	sum := h.Sum32()

	category := categories[sum%uint32(len(categories))]
	confidence := 0.70 + float64(sum%25)/100.0
	return category, confidence
}
