package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dunamismax/photoflow/internal/domain"
	"github.com/dunamismax/photoflow/internal/editor"
	"github.com/dunamismax/photoflow/internal/id"
	"github.com/dunamismax/photoflow/internal/raster"
	"github.com/dunamismax/photoflow/internal/storage"
	"github.com/dunamismax/photoflow/internal/store"
)

// ObjectStoreFetcher loads a stored photo owned by the requesting user.
type ObjectStoreFetcher struct {
	Photos store.PhotoStore
	Blobs  storage.BlobStore
}

func (f ObjectStoreFetcher) Fetch(ctx context.Context, req Request) ([]byte, error) {
	if f.Photos == nil || f.Blobs == nil {
		return nil, errors.New("photo store and blob store are required")
	}
	if strings.TrimSpace(req.PhotoID) == "" {
		return nil, fmt.Errorf("%w: object store fetcher needs a photo id", ErrUnsupportedSourceType)
	}

	photo, ok, err := f.Photos.GetPhoto(ctx, req.PhotoID)
	if err != nil {
		return nil, fmt.Errorf("load photo %s: %w", req.PhotoID, err)
	}
	if !ok || photo.UserID != req.UserID {
		return nil, fmt.Errorf("%w: %s", ErrPhotoNotFound, req.PhotoID)
	}
	return f.Blobs.Get(ctx, photo.BlobName)
}

// ObjectStoreEmitter uploads the export as a new photo derived from the
// source photo. The blob is removed again if the metadata write fails.
type ObjectStoreEmitter struct {
	Photos store.PhotoStore
	Blobs  storage.BlobStore
	Now    func() time.Time
}

func (e ObjectStoreEmitter) Emit(ctx context.Context, req Request, blob editor.Blob) (Output, error) {
	if e.Photos == nil || e.Blobs == nil {
		return Output{}, errors.New("photo store and blob store are required")
	}
	now := time.Now().UTC()
	if e.Now != nil {
		now = e.Now().UTC()
	}

	ext := raster.Extension(blob.Format)
	blobName := storage.UniqueBlobName("edited."+ext, req.Username, now)
	url, err := e.Blobs.Put(ctx, blobName, blob.Data, blob.ContentType)
	if err != nil {
		return Output{}, fmt.Errorf("upload edited photo: %w", err)
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = "Edited photo"
	}
	photo := domain.Photo{
		ID:          id.New(),
		UserID:      req.UserID,
		Title:       title,
		BlobName:    blobName,
		BlobURL:     url,
		ContentType: blob.ContentType,
		Size:        int64(blob.Size()),
		Width:       blob.Width,
		Height:      blob.Height,
		EditedFrom:  req.PhotoID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := e.Photos.CreatePhoto(ctx, photo); err != nil {
		if delErr := e.Blobs.Delete(ctx, blobName); delErr != nil {
			err = errors.Join(err, fmt.Errorf("remove orphaned blob: %w", delErr))
		}
		return Output{}, fmt.Errorf("save edited photo: %w", err)
	}

	out := outputFor(blob, blobName, photo.ID)
	out.URL = url
	return out, nil
}
