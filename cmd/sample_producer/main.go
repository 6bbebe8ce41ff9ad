// Command sample_producer feeds the transaction topic for local testing. It
// loads the bulk source file, keeps the valid rows and publishes random
// samples of them at a fixed interval, simulating a live transaction stream.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fraud-scoring-pipeline/internal/config"
	"github.com/fraud-scoring-pipeline/internal/logger"
	"github.com/fraud-scoring-pipeline/internal/platform/messaging/producers"
	"github.com/fraud-scoring-pipeline/internal/platform/objectstore"
	"github.com/fraud-scoring-pipeline/internal/reader"
	"github.com/fraud-scoring-pipeline/internal/validation"
)

const sampleLoadSize = 10000

func main() {
	interval := flag.Duration("interval", 500*time.Millisecond, "time between message batches")
	minRecords := flag.Int("min", 1, "minimum records per batch")
	maxRecords := flag.Int("max", 10, "maximum records per batch")
	flag.Parse()

	appCtx, cancelAppCtx := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancelAppCtx()

	cfg, err := config.LoadConfig("sample_producer")
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.ValidateObjectStore(); err != nil {
		fmt.Printf("Invalid object store configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewLogger(cfg)

	store, err := objectstore.NewClient(appCtx, log, &cfg.ObjectStore)
	if err != nil {
		log.Error("Failed to initialize object store", "error", err)
		os.Exit(1)
	}

	// Pull one big validated window to sample from; rejects are only logged
	bulkReader := reader.NewBulkReader(
		store,
		cfg.ObjectStore.Bucket,
		cfg.ObjectStore.Object,
		"sample_producer",
		validation.NewValidator(log),
		log,
	)
	window, err := bulkReader.Read(sampleLoadSize).Next(appCtx)
	if err != nil {
		log.Error("Failed to load sample transactions", "error", err)
		os.Exit(1)
	}
	if window == nil || len(window.Valid) == 0 {
		log.Error("Source file contains no valid transactions to sample")
		os.Exit(1)
	}
	log.Info("Loaded sample transactions",
		"valid", len(window.Valid),
		"invalid", len(window.Invalid),
	)

	feed, err := producers.NewTransactionFeedProducer(appCtx, log, &cfg.Kafka)
	if err != nil {
		log.Error("Failed to initialize feed producer", "error", err)
		os.Exit(1)
	}
	defer feed.Close()

	log.Info("Starting sample producer",
		"topic", cfg.Kafka.TransactionTopic,
		"interval", interval.String(),
		"min_records", *minRecords,
		"max_records", *maxRecords,
	)

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	var sent int
	for {
		select {
		case <-appCtx.Done():
			log.Info("Sample producer stopped", "total_sent", sent)
			return
		case <-ticker.C:
			count := *minRecords
			if *maxRecords > *minRecords {
				count += rand.Intn(*maxRecords - *minRecords + 1)
			}

			for i := 0; i < count; i++ {
				tx := window.Valid[rand.Intn(len(window.Valid))]
				if err := feed.Publish(appCtx, tx.ID.String(), tx); err != nil {
					log.Error("Failed to publish sample transaction", "error", err)
					continue
				}
				sent++
			}
			log.Debug("Published sample batch", "count", count, "total_sent", sent)
		}
	}
}
