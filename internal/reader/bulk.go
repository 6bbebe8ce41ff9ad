package reader

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"

	"github.com/fraud-scoring-pipeline/internal/domain/transaction"
	"github.com/fraud-scoring-pipeline/internal/validation"
)

// requiredColumns must all be present in the source CSV header. Lineage
// columns are stamped by the reader, never expected from the file.
var requiredColumns = []string{"id", "description", "amount", "timestamp", "merchant", "operation_type", "side"}

// csvSeparator is the field separator of the source files. The decimal
// separator inside amount values is a comma, which the validator normalizes.
const csvSeparator = ';'

// ObjectFetcher fetches one object from storage. Satisfied by the
// objectstore platform wrapper.
type ObjectFetcher interface {
	FetchObject(ctx context.Context, bucket, object string) (io.ReadCloser, error)
}

// BulkReader loads the entire source object once, stamps lineage, filters
// null rows and slices the remainder deterministically into fixed-size
// chunks, yielding one validated window per chunk until exhausted.
type BulkReader struct {
	fetcher   ObjectFetcher
	bucket    string
	object    string
	runID     string
	validator *validation.Validator
	logger    *slog.Logger
}

func NewBulkReader(
	fetcher ObjectFetcher,
	bucket string,
	object string,
	runID string,
	validator *validation.Validator,
	logger *slog.Logger,
) *BulkReader {
	return &BulkReader{
		fetcher:   fetcher,
		bucket:    bucket,
		object:    object,
		runID:     runID,
		validator: validator,
		logger:    logger,
	}
}

func (r *BulkReader) Read(targetSize int) Iterator {
	return &bulkIterator{reader: r, targetSize: targetSize}
}

type bulkIterator struct {
	reader     *BulkReader
	targetSize int

	loaded  bool
	records []map[string]any
	offset  int
}

// Next lazily loads the object on first use, then validates and yields one
// chunk per call until the slices are exhausted.
func (it *bulkIterator) Next(ctx context.Context) (*Window, error) {
	if !it.loaded {
		records, err := it.reader.load(ctx)
		if err != nil {
			return nil, err
		}
		it.records = records
		it.loaded = true
	}

	if it.offset >= len(it.records) {
		return nil, nil
	}

	end := it.offset + it.targetSize
	if end > len(it.records) {
		end = len(it.records)
	}
	chunk := it.records[it.offset:end]
	it.offset = end

	valid, invalid := it.reader.validator.ValidateRecords(chunk)
	return &Window{Valid: valid, Invalid: invalid}, nil
}

// load downloads and parses the whole object: header check, lineage stamping
// and null filtering, in that order.
func (r *BulkReader) load(ctx context.Context) ([]map[string]any, error) {
	r.logger.Info("Reading data from object storage", "bucket", r.bucket, "object", r.object)

	body, err := r.fetcher.FetchObject(ctx, r.bucket, r.object)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch object %s/%s: %w", r.bucket, r.object, err)
	}
	defer body.Close()

	csvReader := csv.NewReader(body)
	csvReader.Comma = csvSeparator

	header, err := csvReader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header from %s/%s: %w", r.bucket, r.object, err)
	}

	columnIndex := make(map[string]int, len(header))
	for i, name := range header {
		columnIndex[name] = i
	}
	for _, required := range requiredColumns {
		if _, ok := columnIndex[required]; !ok {
			return nil, fmt.Errorf("missing required column %q in %s/%s", required, r.bucket, r.object)
		}
	}

	var records []map[string]any
	nullRows := 0
	for {
		row, err := csvReader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV row from %s/%s: %w", r.bucket, r.object, err)
		}

		record, hasNull := rowToRecord(header, row)
		if hasNull {
			nullRows++
			continue
		}

		// Lineage stamping: the reader, not the file, decides these
		record["run_id"] = r.runID
		record["processing_type"] = string(transaction.ProcessingTypeBatch)
		records = append(records, record)
	}

	r.logger.Info("Loaded raw transactions from CSV", "count", len(records)+nullRows)
	if nullRows > 0 {
		r.logger.Warn("Filtered rows with null values", "count", nullRows, "remaining", len(records))
	}

	return records, nil
}

// rowToRecord maps one CSV row onto the header. Empty cells count as nulls;
// merchant is the only column allowed to be empty.
func rowToRecord(header []string, row []string) (map[string]any, bool) {
	record := make(map[string]any, len(header))
	hasNull := false
	for i, name := range header {
		value := ""
		if i < len(row) {
			value = row[i]
		}
		if value == "" && name != "merchant" {
			hasNull = true
		}
		record[name] = value
	}
	return record, hasNull
}
