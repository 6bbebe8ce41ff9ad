package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/fraud-scoring-pipeline/internal/config"
	"github.com/fraud-scoring-pipeline/internal/data/mongo"
	"github.com/fraud-scoring-pipeline/internal/data/postgres"
	"github.com/fraud-scoring-pipeline/internal/logger"
	"github.com/fraud-scoring-pipeline/internal/orchestrator"
	"github.com/fraud-scoring-pipeline/internal/platform/messaging/producers"
	"github.com/fraud-scoring-pipeline/internal/platform/objectstore"
	"github.com/fraud-scoring-pipeline/internal/platform/persistence"
	"github.com/fraud-scoring-pipeline/internal/reader"
	"github.com/fraud-scoring-pipeline/internal/retry"
	"github.com/fraud-scoring-pipeline/internal/scoring"
	"github.com/fraud-scoring-pipeline/internal/validation"
)

func main() {
	appCtx, cancelAppCtx := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancelAppCtx()

	cfg, err := config.LoadConfig("batch_pipeline")
	if err != nil {
		// logger is not initialized yet, so we use fmt
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.ValidateObjectStore(); err != nil {
		fmt.Printf("Invalid object store configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewLogger(cfg)

	// Every row and reject of this run carries the same lineage tag
	runID := fmt.Sprintf("batch_%s", time.Now().UTC().Format("20060102_150405"))

	log.Info("Starting batch pipeline",
		"app_name", cfg.Application.Name,
		"env", cfg.Application.Env,
		"run_id", runID,
	)

	postgresDB, err := persistence.NewPostgresDB(appCtx, log, &cfg.Postgres)
	if err != nil {
		log.Error("Failed to initialize PostgreSQL", "error", err)
		os.Exit(1)
	}
	defer postgresDB.Close()

	store, err := objectstore.NewClient(appCtx, log, &cfg.ObjectStore)
	if err != nil {
		log.Error("Failed to initialize object store", "error", err)
		os.Exit(1)
	}

	deadLetter, err := producers.NewDeadLetterProducer(appCtx, log, &cfg.Kafka, runID)
	if err != nil {
		log.Error("Failed to initialize dead letter producer", "error", err)
		os.Exit(1)
	}
	defer deadLetter.Close()

	var reporters orchestrator.CompositeReporter
	if deadLetter != nil {
		reporters = append(reporters, deadLetter)
	}

	if cfg.MongoDB.URI != "" {
		mongoDB, err := persistence.NewMongoDB(appCtx, log, &cfg.MongoDB)
		if err != nil {
			log.Error("Failed to initialize MongoDB audit store", "error", err)
			os.Exit(1)
		}
		defer func() {
			_ = mongoDB.Close(context.Background())
		}()
		auditRepo := mongo.NewInvalidRecordRepository(log, mongoDB.Database())
		reporters = append(reporters, auditRepo.ForRun(runID))
	}

	validator := validation.NewValidator(log)
	policy := retry.NewPolicy(cfg.Pipeline.MaxRetries, cfg.Pipeline.RetryInitialDelay, log)

	bulkReader := reader.NewBulkReader(
		store,
		cfg.ObjectStore.Bucket,
		cfg.ObjectStore.Object,
		runID,
		validator,
		log,
	)
	classifier := scoring.NewClient(cfg.Scoring.URL, cfg.Scoring.Timeout, policy, log)
	sink := postgres.NewResultRepository(log, postgresDB, policy)

	var summary *orchestrator.Summary
	err = postgresDB.ExecuteTx(appCtx, func(tx pgx.Tx) error {
		o, err := orchestrator.New(orchestrator.Config{
			RowBatchSize:   cfg.Pipeline.RowBatchSize,
			APIBatchSize:   cfg.Pipeline.APIBatchSize,
			APIMaxWorkers:  cfg.Pipeline.APIMaxWorkers,
			DBRowBatchSize: cfg.Pipeline.DBRowBatchSize,
		}, bulkReader, classifier, sink.WithTx(tx), reporters, log)
		if err != nil {
			return err
		}
		defer o.Close()

		summary, err = o.Run(appCtx)
		return err
	})
	if err != nil {
		log.Error("Batch run failed", "run_id", runID, "error", err)
		os.Exit(1)
	}

	// Failed and invalid records are an error condition but not an exit code:
	// only an unrecovered persistence failure fails the process
	if summary.Failed > 0 || summary.Invalid > 0 {
		log.Error("Batch run finished with unprocessed records",
			"run_id", runID,
			"processed", summary.Processed,
			"failed", summary.Failed,
			"invalid", summary.Invalid,
		)
		return
	}

	log.Info("Batch run finished",
		"run_id", runID,
		"processed", summary.Processed,
		"failed", summary.Failed,
		"invalid", summary.Invalid,
	)
}
