// Package config provides configuration structures and validation for the
// pipeline binaries. It handles environment-based configuration for all major
// components: source readers, the classification client, the worker pool and
// the persistence layer.
package config

import (
	"errors"
	"strings"
	"time"
)

// Config holds the complete application configuration. Each field represents a
// major subsystem's configuration and is validated during startup.
type Config struct {
	Application ApplicationConfig
	Logging     LoggingConfig
	Server      ServerConfig
	Pipeline    PipelineConfig
	Scoring     ScoringConfig
	Kafka       KafkaConfig
	Postgres    PostgresConfig
	MongoDB     MongoDBConfig
	ObjectStore ObjectStoreConfig
}

// ApplicationConfig contains general application configuration
type ApplicationConfig struct {
	Env  string
	Name string
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level string
}

// ServerConfig contains the HTTP server configuration for the scoring stub
type ServerConfig struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// PipelineConfig contains the batching and retry knobs of the orchestration
// engine. Three independent batch sizes compose here: how many rows a source
// read produces, how many transactions one classification call carries, and
// how many accumulated rows trigger a persistence flush.
type PipelineConfig struct {
	RowBatchSize   int // Rows per source read window
	APIBatchSize   int // Transactions per classification call
	APIMaxWorkers  int // Bounded worker pool for parallel classification
	DBRowBatchSize int // Accumulation threshold for a persistence flush

	MaxRetries        int           // Attempts for classification and persistence calls
	RetryInitialDelay time.Duration // First backoff delay, doubles per attempt

	// Streaming-only micro-batching knobs
	MessageBatchSize       int           // Target messages per streaming window
	PollTimeout            time.Duration // Per-poll timeout on the broker
	BufferTimeout          time.Duration // Max age of a non-empty window before a partial yield
	MaxConsecutiveTimeouts int           // Empty polls tolerated on a non-empty window
}

// ScoringConfig contains the classification service client configuration
type ScoringConfig struct {
	URL     string
	Timeout time.Duration
}

// KafkaConfig contains Kafka configuration
type KafkaConfig struct {
	Brokers           string
	TransactionTopic  string
	NumPartitions     int // Number of partitions for topics
	ReplicationFactor int // Replication factor for topics
	ConsumerGroup     string
	MinBytes          int
	MaxBytes          int
	MaxWait           time.Duration
	DeadLetterTopic   string // Topic for failed and invalid records; empty disables the producer
}

// PostgresConfig contains PostgreSQL configuration
type PostgresConfig struct {
	URL             string        // Database connection string
	MaxConns        int32         // Maximum number of open connections
	MinConns        int32         // Maximum number of idle connections
	ConnMaxLifetime time.Duration // Maximum lifetime of a connection
	ConnMaxIdleTime time.Duration // Maximum idle time of a connection
	MigrationsPath  string        // Path to migration files
}

// MongoDBConfig contains the optional invalid-record audit store
// configuration. An empty URI disables the audit store.
type MongoDBConfig struct {
	URI             string
	Database        string
	Timeout         time.Duration
	MaxPoolSize     uint64
	MinPoolSize     uint64
	MaxConnIdleTime time.Duration
}

// ObjectStoreConfig contains the S3-compatible object storage configuration
// for the bulk source.
type ObjectStoreConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
	Object    string
}

// validate performs comprehensive validation of all configuration values,
// ensuring they meet minimum requirements and logical constraints
func (c *Config) validate() error {
	var validationErrors []string

	// Validate Pipeline config
	if c.Pipeline.RowBatchSize <= 0 {
		validationErrors = append(validationErrors, "ROW_BATCH_SIZE must be greater than 0")
	}
	if c.Pipeline.APIBatchSize <= 0 {
		validationErrors = append(validationErrors, "API_BATCH_SIZE must be greater than 0")
	}
	if c.Pipeline.APIMaxWorkers <= 0 {
		validationErrors = append(validationErrors, "API_MAX_WORKERS must be greater than 0")
	}
	if c.Pipeline.DBRowBatchSize <= 0 {
		validationErrors = append(validationErrors, "DB_ROW_BATCH_SIZE must be greater than 0")
	}
	if c.Pipeline.MaxRetries <= 0 {
		validationErrors = append(validationErrors, "MAX_RETRIES must be greater than 0")
	}
	if c.Pipeline.RetryInitialDelay <= 0 {
		validationErrors = append(validationErrors, "RETRY_INITIAL_DELAY must be greater than 0")
	}
	if c.Pipeline.MessageBatchSize <= 0 {
		validationErrors = append(validationErrors, "MESSAGE_BATCH_SIZE must be greater than 0")
	}
	if c.Pipeline.PollTimeout <= 0 {
		validationErrors = append(validationErrors, "POLL_TIMEOUT must be greater than 0")
	}
	if c.Pipeline.BufferTimeout <= 0 {
		validationErrors = append(validationErrors, "BUFFER_TIMEOUT must be greater than 0")
	}
	if c.Pipeline.MaxConsecutiveTimeouts <= 0 {
		validationErrors = append(validationErrors, "MAX_CONSECUTIVE_TIMEOUTS must be greater than 0")
	}

	// Validate Scoring config
	if c.Scoring.URL == "" {
		validationErrors = append(validationErrors, "SCORING_URL is required")
	}
	if c.Scoring.Timeout <= 0 {
		validationErrors = append(validationErrors, "SCORING_TIMEOUT must be greater than 0")
	}

	// Validate Kafka config
	if len(c.Kafka.Brokers) == 0 {
		validationErrors = append(validationErrors, "KAFKA_BROKERS is required")
	}
	if c.Kafka.TransactionTopic == "" {
		validationErrors = append(validationErrors, "KAFKA_TRANSACTION_TOPIC is required")
	}
	if c.Kafka.ConsumerGroup == "" {
		validationErrors = append(validationErrors, "KAFKA_CONSUMER_GROUP is required")
	}
	if c.Kafka.MinBytes <= 0 {
		validationErrors = append(validationErrors, "KAFKA_CONSUMER_MIN_BYTES must be greater than 0")
	}
	if c.Kafka.MaxBytes <= 0 {
		validationErrors = append(validationErrors, "KAFKA_CONSUMER_MAX_BYTES must be greater than 0")
	}
	if c.Kafka.MaxWait <= 0 {
		validationErrors = append(validationErrors, "KAFKA_CONSUMER_MAX_WAIT must be greater than 0")
	}

	// Validate PostgreSQL config
	if c.Postgres.URL == "" {
		validationErrors = append(validationErrors, "POSTGRES_URL is required")
	}
	if c.Postgres.MaxConns <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MAX_CONNS must be greater than 0")
	}
	if c.Postgres.MinConns <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MIN_CONNS must be greater than 0")
	}
	if c.Postgres.ConnMaxLifetime <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MAX_CONN_LIFETIME must be greater than 0")
	}
	if c.Postgres.ConnMaxIdleTime <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MAX_CONN_IDLE_TIME must be greater than 0")
	}

	// MongoDB audit store is optional; validate only when a URI is configured
	if c.MongoDB.URI != "" {
		if c.MongoDB.Database == "" {
			validationErrors = append(validationErrors, "MONGO_DATABASE is required when MONGO_URI is set")
		}
		if c.MongoDB.Timeout <= 0 {
			validationErrors = append(validationErrors, "MONGO_TIMEOUT must be greater than 0")
		}
		if c.MongoDB.MaxPoolSize <= 0 {
			validationErrors = append(validationErrors, "MONGO_MAX_POOL_SIZE must be greater than 0")
		}
		if c.MongoDB.MinPoolSize <= 0 {
			validationErrors = append(validationErrors, "MONGO_MIN_POOL_SIZE must be greater than 0")
		}
		if c.MongoDB.MaxConnIdleTime <= 0 {
			validationErrors = append(validationErrors, "MONGO_MAX_CONN_IDLE_TIME must be greater than 0")
		}
	}

	if len(validationErrors) > 0 {
		return errors.New(strings.Join(validationErrors, ", "))
	}

	return nil
}

// ValidateObjectStore checks the bulk-source settings. Only the batch binary
// reads from object storage, so these are validated separately from the
// shared validation.
func (c *Config) ValidateObjectStore() error {
	var validationErrors []string

	if c.ObjectStore.Endpoint == "" {
		validationErrors = append(validationErrors, "MINIO_ENDPOINT is required")
	}
	if c.ObjectStore.AccessKey == "" {
		validationErrors = append(validationErrors, "MINIO_ACCESS_KEY is required")
	}
	if c.ObjectStore.SecretKey == "" {
		validationErrors = append(validationErrors, "MINIO_SECRET_KEY is required")
	}
	if c.ObjectStore.Bucket == "" {
		validationErrors = append(validationErrors, "MINIO_BUCKET is required")
	}
	if c.ObjectStore.Object == "" {
		validationErrors = append(validationErrors, "MINIO_OBJECT is required")
	}

	if len(validationErrors) > 0 {
		return errors.New(strings.Join(validationErrors, ", "))
	}

	return nil
}
