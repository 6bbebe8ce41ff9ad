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
	"github.com/fraud-scoring-pipeline/internal/platform/messaging/consumers"
	"github.com/fraud-scoring-pipeline/internal/platform/messaging/producers"
	"github.com/fraud-scoring-pipeline/internal/platform/persistence"
	"github.com/fraud-scoring-pipeline/internal/reader"
	"github.com/fraud-scoring-pipeline/internal/retry"
	"github.com/fraud-scoring-pipeline/internal/scoring"
	"github.com/fraud-scoring-pipeline/internal/validation"
)

func main() {
	appCtx, cancelAppCtx := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancelAppCtx()

	cfg, err := config.LoadConfig("streaming_pipeline")
	if err != nil {
		// logger is not initialized yet, so we use fmt
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewLogger(cfg)

	runID := fmt.Sprintf("streaming_%s", time.Now().UTC().Format("20060102_150405"))

	log.Info("Starting streaming pipeline",
		"app_name", cfg.Application.Name,
		"env", cfg.Application.Env,
		"run_id", runID,
		"topic", cfg.Kafka.TransactionTopic,
		"group", cfg.Kafka.ConsumerGroup,
	)

	// Processing keeps its own context: a shutdown signal lets the window in
	// flight finish instead of cancelling its database writes midway.
	procCtx := context.Background()

	postgresDB, err := persistence.NewPostgresDB(procCtx, log, &cfg.Postgres)
	if err != nil {
		log.Error("Failed to initialize PostgreSQL", "error", err)
		os.Exit(1)
	}
	defer postgresDB.Close()

	consumer := consumers.NewTransactionConsumer(log, &cfg.Kafka)
	defer consumer.Close()

	deadLetter, err := producers.NewDeadLetterProducer(procCtx, log, &cfg.Kafka, runID)
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
		mongoDB, err := persistence.NewMongoDB(procCtx, log, &cfg.MongoDB)
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

	streamReader := reader.NewStreamReader(
		consumer.Reader(),
		reader.StreamConfig{
			PollTimeout:            cfg.Pipeline.PollTimeout,
			BufferTimeout:          cfg.Pipeline.BufferTimeout,
			MaxConsecutiveTimeouts: cfg.Pipeline.MaxConsecutiveTimeouts,
		},
		runID,
		validator,
		appCtx.Done(),
		log,
	)
	classifier := scoring.NewClient(cfg.Scoring.URL, cfg.Scoring.Timeout, policy, log)
	sink := postgres.NewResultRepository(log, postgresDB, policy)

	totals := orchestrator.Summary{}
	for {
		select {
		case <-appCtx.Done():
			log.Info("Shutdown requested, streaming pipeline stopping",
				"run_id", runID,
				"processed", totals.Processed,
				"failed", totals.Failed,
				"invalid", totals.Invalid,
			)
			return
		default:
		}

		// One pass consumes at most one micro-batch window. Each pass gets
		// its own store transaction: a terminal flush failure rolls the
		// whole window back instead of leaving transactions committed
		// without their predictions.
		var summary *orchestrator.Summary
		err := postgresDB.ExecuteTx(procCtx, func(tx pgx.Tx) error {
			o, err := orchestrator.New(orchestrator.Config{
				RowBatchSize:   cfg.Pipeline.MessageBatchSize,
				APIBatchSize:   cfg.Pipeline.APIBatchSize,
				APIMaxWorkers:  cfg.Pipeline.APIMaxWorkers,
				DBRowBatchSize: cfg.Pipeline.DBRowBatchSize,
			}, streamReader, classifier, sink.WithTx(tx), reporters, log)
			if err != nil {
				return err
			}
			defer o.Close()

			summary, err = o.Run(procCtx)
			return err
		})
		if err != nil {
			log.Error("Streaming window failed", "run_id", runID, "error", err)
			os.Exit(1)
		}

		totals.Processed += summary.Processed
		totals.Failed += summary.Failed
		totals.Invalid += summary.Invalid

		if summary.Failed > 0 || summary.Invalid > 0 {
			log.Error("Window finished with unprocessed records",
				"run_id", runID,
				"failed", summary.Failed,
				"invalid", summary.Invalid,
			)
		}
	}
}
