package reader

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/fraud-scoring-pipeline/internal/domain/transaction"
	"github.com/fraud-scoring-pipeline/internal/validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeObjectFetcher struct {
	content string
	err     error
}

func (f *fakeObjectFetcher) FetchObject(_ context.Context, _, _ string) (io.ReadCloser, error) {
	if f.err != nil {
		return nil, f.err
	}
	return io.NopCloser(strings.NewReader(f.content)), nil
}

const csvHeader = "id;description;amount;timestamp;merchant;operation_type;side\n"

func csvRow(id, amount string) string {
	return id + ";Grocery store;" + amount + ";2024-03-01 10:30:00;Carrefour;debit;out\n"
}

func newBulkReader(t *testing.T, content string) *BulkReader {
	t.Helper()
	return NewBulkReader(
		&fakeObjectFetcher{content: content},
		"transactions",
		"transactions_fr.csv",
		"batch_test_run",
		validation.NewValidator(slog.Default()),
		slog.Default(),
	)
}

func drain(t *testing.T, it Iterator) []*Window {
	t.Helper()
	var windows []*Window
	for {
		w, err := it.Next(context.Background())
		require.NoError(t, err)
		if w == nil {
			return windows
		}
		windows = append(windows, w)
	}
}

func TestBulkReader_SlicesIntoFixedSizeWindows(t *testing.T) {
	var sb strings.Builder
	sb.WriteString(csvHeader)
	for i := 0; i < 10; i++ {
		sb.WriteString(csvRow("row", "12,50"))
	}

	r := newBulkReader(t, sb.String())
	windows := drain(t, r.Read(4))

	require.Len(t, windows, 3)
	assert.Len(t, windows[0].Valid, 4)
	assert.Len(t, windows[1].Valid, 4)
	assert.Len(t, windows[2].Valid, 2)
	for _, w := range windows {
		assert.Empty(t, w.Invalid)
	}
}

func TestBulkReader_StampsLineage(t *testing.T) {
	r := newBulkReader(t, csvHeader+csvRow("abc", "7,00"))
	windows := drain(t, r.Read(5))

	require.Len(t, windows, 1)
	require.Len(t, windows[0].Valid, 1)

	tx := windows[0].Valid[0]
	assert.Equal(t, transaction.ProcessingTypeBatch, tx.ProcessingType)
	assert.Equal(t, "batch_test_run", tx.RunID)
	// The source id column never becomes the identity
	assert.NotEqual(t, "abc", tx.ID.String())
	assert.Equal(t, 7.0, tx.Amount)
}

func TestBulkReader_FiltersNullRows(t *testing.T) {
	content := csvHeader +
		csvRow("a", "1,00") +
		"b;;2,00;2024-03-01 10:30:00;Carrefour;debit;out\n" + // empty description
		csvRow("c", "3,00")

	r := newBulkReader(t, content)
	windows := drain(t, r.Read(10))

	require.Len(t, windows, 1)
	assert.Len(t, windows[0].Valid, 2)
	assert.Empty(t, windows[0].Invalid) // Null rows are filtered, not invalid
}

func TestBulkReader_EmptyMerchantIsKept(t *testing.T) {
	content := csvHeader + "a;Desc;1,00;2024-03-01 10:30:00;;debit;out\n"

	r := newBulkReader(t, content)
	windows := drain(t, r.Read(10))

	require.Len(t, windows, 1)
	require.Len(t, windows[0].Valid, 1)
	assert.Equal(t, "", windows[0].Valid[0].Merchant)
}

func TestBulkReader_MissingRequiredColumn(t *testing.T) {
	content := "id;description;amount;timestamp;merchant;operation_type\nrow;Desc;1,00;2024-03-01 10:30:00;M;debit\n"

	r := newBulkReader(t, content)
	_, err := r.Read(10).Next(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "side")
}

func TestBulkReader_FetchFailurePropagates(t *testing.T) {
	r := NewBulkReader(
		&fakeObjectFetcher{err: errors.New("bucket unreachable")},
		"transactions",
		"transactions_fr.csv",
		"batch_test_run",
		validation.NewValidator(slog.Default()),
		slog.Default(),
	)

	_, err := r.Read(10).Next(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket unreachable")
}

func TestBulkReader_ExhaustedStaysExhausted(t *testing.T) {
	r := newBulkReader(t, csvHeader+csvRow("a", "1,00"))
	it := r.Read(10)

	w, err := it.Next(context.Background())
	require.NoError(t, err)
	require.NotNil(t, w)

	for i := 0; i < 2; i++ {
		w, err = it.Next(context.Background())
		require.NoError(t, err)
		assert.Nil(t, w)
	}
}
