// Package objectstore connects to the S3-compatible store that holds the
// bulk source files.
package objectstore

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/fraud-scoring-pipeline/internal/config"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Client wraps a MinIO connection and satisfies the bulk reader's object
// fetcher.
type Client struct {
	client *minio.Client
	logger *slog.Logger
}

// NewClient connects to the object store and verifies the configured bucket
// exists so a bad deployment fails at startup instead of mid-run.
func NewClient(ctx context.Context, logger *slog.Logger, cfg *config.ObjectStoreConfig) (*Client, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object store client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		return nil, fmt.Errorf("bucket %s does not exist", cfg.Bucket)
	}

	logger.Info("Connected to object store", "endpoint", cfg.Endpoint, "bucket", cfg.Bucket)

	return &Client{
		client: client,
		logger: logger,
	}, nil
}

// FetchObject opens the named object for reading. The caller owns the
// returned reader.
func (c *Client) FetchObject(ctx context.Context, bucket, object string) (io.ReadCloser, error) {
	obj, err := c.client.GetObject(ctx, bucket, object, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch object %s/%s: %w", bucket, object, err)
	}

	// GetObject is lazy; surface missing objects now rather than on first read
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		return nil, fmt.Errorf("failed to stat object %s/%s: %w", bucket, object, err)
	}

	c.logger.Debug("Opened source object", "bucket", bucket, "object", object)
	return obj, nil
}
