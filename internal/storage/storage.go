package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/dunamismax/photoflow/internal/config"
	"go.uber.org/zap"
)

var ErrNotFound = errors.New("blob not found")

// BlobStore keeps photo bytes by blob name.
type BlobStore interface {
	// Put stores data under name and returns the blob's public URL.
	Put(ctx context.Context, name string, data []byte, contentType string) (string, error)
	// Get returns ErrNotFound when the blob does not exist.
	Get(ctx context.Context, name string) ([]byte, error)
	// Delete succeeds when the blob is already gone.
	Delete(ctx context.Context, name string) error
}

// New builds the configured backend and makes sure its bucket or container
// exists.
func New(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (BlobStore, error) {
	switch cfg.Provider {
	case "minio", "":
		s, err := NewMinioStore(MinioConfig{
			Endpoint: cfg.Endpoint,
			Access:   cfg.AccessKey,
			Secret:   cfg.SecretKey,
			Bucket:   cfg.Bucket,
			UseSSL:   cfg.UseSSL,
		})
		if err != nil {
			return nil, err
		}
		if err := s.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		logger.Info("minio blob storage ready", zap.String("endpoint", cfg.Endpoint), zap.String("bucket", cfg.Bucket))
		return s, nil
	case "azure":
		s, err := NewAzureStore(ctx, cfg.AzureConnectionString, cfg.AzureContainer, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported storage provider: %s", cfg.Provider)
	}
}
