package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"go.uber.org/zap"
)

type AzureStore struct {
	client    *azblob.Client
	container string
	logger    *zap.Logger
}

func NewAzureStore(ctx context.Context, connectionString, container string, logger *zap.Logger) (*AzureStore, error) {
	if strings.TrimSpace(connectionString) == "" {
		return nil, fmt.Errorf("azure storage connection string is not configured")
	}
	if strings.TrimSpace(container) == "" {
		container = "photos"
	}

	client, err := azblob.NewClientFromConnectionString(connectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("create blob client: %w", err)
	}

	_, err = client.CreateContainer(ctx, container, nil)
	if err != nil && !bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
		return nil, fmt.Errorf("create container %s: %w", container, err)
	}

	logger.Info("azure blob storage ready", zap.String("container", container))
	return &AzureStore{
		client:    client,
		container: container,
		logger:    logger,
	}, nil
}

func (s *AzureStore) URL(name string) string {
	return strings.TrimSuffix(s.client.URL(), "/") + "/" + url.PathEscape(s.container) + "/" + name
}

func (s *AzureStore) Put(ctx context.Context, name string, data []byte, contentType string) (string, error) {
	_, err := s.client.UploadBuffer(ctx, s.container, name, data, &azblob.UploadBufferOptions{
		HTTPHeaders: &blob.HTTPHeaders{
			BlobContentType: &contentType,
		},
	})
	if err != nil {
		return "", fmt.Errorf("upload blob %s: %w", name, err)
	}

	s.logger.Debug("blob uploaded",
		zap.String("blob_name", name),
		zap.String("content_type", contentType),
		zap.Int("size", len(data)),
	)
	return s.URL(name), nil
}

func (s *AzureStore) Get(ctx context.Context, name string) ([]byte, error) {
	resp, err := s.client.DownloadStream(ctx, s.container, name, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("download blob %s: %w", name, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read blob %s: %w", name, err)
	}
	return data, nil
}

func (s *AzureStore) Delete(ctx context.Context, name string) error {
	_, err := s.client.DeleteBlob(ctx, s.container, name, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			s.logger.Debug("blob already deleted", zap.String("blob_name", name))
			return nil
		}
		return fmt.Errorf("delete blob %s: %w", name, err)
	}
	return nil
}
