package store

import (
	"context"
	"errors"
	"strings"

	"github.com/dunamismax/photoflow/internal/domain"
)

var ErrNotFound = errors.New("record not found")

type PhotoStore interface {
	CreatePhoto(ctx context.Context, photo domain.Photo) error
	GetPhoto(ctx context.Context, id string) (domain.Photo, bool, error)
	// ListPhotos returns the user's photos, newest first.
	ListPhotos(ctx context.Context, userID string) ([]domain.Photo, error)
	DeletePhoto(ctx context.Context, id string) error
}

type EditJobStore interface {
	CreateEditJob(ctx context.Context, job domain.EditJob) error
	GetEditJob(ctx context.Context, id string) (domain.EditJob, bool, error)
	UpdateEditJobStatus(ctx context.Context, id, status string) (domain.EditJob, error)
	// FinishEditJob records the terminal status with either the result photo
	// or the failure message.
	FinishEditJob(ctx context.Context, id, status, resultPhotoID, errMsg string) (domain.EditJob, error)
}

type UsageStore interface {
	CreateUsageLog(ctx context.Context, usage domain.UsageLog) error
}

// Store is everything the API and worker persist.
type Store interface {
	PhotoStore
	EditJobStore
	UsageStore
	Close() error
}

// Open returns a Postgres store for a non-empty DSN and an in-memory store
// otherwise.
func Open(ctx context.Context, dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return NewMemoryStore(), nil
	}
	return NewPostgresStore(ctx, dsn)
}
