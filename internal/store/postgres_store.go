package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dunamismax/photoflow/internal/domain"
	_ "github.com/lib/pq"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS photos (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	blob_name TEXT NOT NULL,
	blob_url TEXT NOT NULL,
	content_type TEXT NOT NULL,
	size BIGINT NOT NULL,
	width INTEGER NOT NULL DEFAULT 0,
	height INTEGER NOT NULL DEFAULT 0,
	edited_from TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS photos_user_created_idx ON photos (user_id, created_at DESC);

CREATE TABLE IF NOT EXISTS edit_jobs (
	id TEXT PRIMARY KEY,
	photo_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	username TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	recipe JSONB NOT NULL,
	webhook_url TEXT NOT NULL DEFAULT '',
	result_photo_id TEXT NOT NULL DEFAULT '',
	error TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS usage_logs (
	id BIGSERIAL PRIMARY KEY,
	user_id TEXT NOT NULL,
	job_id TEXT NOT NULL,
	pixels_processed BIGINT NOT NULL,
	bytes_in BIGINT NOT NULL,
	bytes_out BIGINT NOT NULL,
	compute_time_ms BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
`

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	store := &PostgresStore{db: db}
	if err := store.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

const photoColumns = `id, user_id, title, description, blob_name, blob_url, content_type, size, width, height, edited_from, created_at, updated_at`

func (s *PostgresStore) CreatePhoto(ctx context.Context, photo domain.Photo) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO photos (`+photoColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		photo.ID,
		photo.UserID,
		photo.Title,
		photo.Description,
		photo.BlobName,
		photo.BlobURL,
		photo.ContentType,
		photo.Size,
		photo.Width,
		photo.Height,
		photo.EditedFrom,
		photo.CreatedAt,
		photo.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert photo: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPhoto(row rowScanner) (domain.Photo, error) {
	var photo domain.Photo
	err := row.Scan(
		&photo.ID,
		&photo.UserID,
		&photo.Title,
		&photo.Description,
		&photo.BlobName,
		&photo.BlobURL,
		&photo.ContentType,
		&photo.Size,
		&photo.Width,
		&photo.Height,
		&photo.EditedFrom,
		&photo.CreatedAt,
		&photo.UpdatedAt,
	)
	return photo, err
}

func (s *PostgresStore) GetPhoto(ctx context.Context, id string) (domain.Photo, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+photoColumns+` FROM photos WHERE id = $1`, id)
	photo, err := scanPhoto(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Photo{}, false, nil
		}
		return domain.Photo{}, false, fmt.Errorf("query photo: %w", err)
	}
	return photo, true, nil
}

func (s *PostgresStore) ListPhotos(ctx context.Context, userID string) ([]domain.Photo, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+photoColumns+` FROM photos WHERE user_id = $1 ORDER BY created_at DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query photos: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Photo, 0)
	for rows.Next() {
		photo, err := scanPhoto(rows)
		if err != nil {
			return nil, fmt.Errorf("scan photo: %w", err)
		}
		out = append(out, photo)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate photos: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) DeletePhoto(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM photos WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete photo: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

const editJobColumns = `id, photo_id, user_id, username, status, title, recipe, webhook_url, result_photo_id, error, created_at, updated_at`

func (s *PostgresStore) CreateEditJob(ctx context.Context, job domain.EditJob) error {
	recipeJSON, err := json.Marshal(job.Recipe)
	if err != nil {
		return fmt.Errorf("marshal edit recipe: %w", err)
	}

	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO edit_jobs (`+editJobColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		job.ID,
		job.PhotoID,
		job.UserID,
		job.Username,
		job.Status,
		job.Title,
		recipeJSON,
		job.WebhookURL,
		job.ResultPhotoID,
		job.Error,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert edit job: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetEditJob(ctx context.Context, id string) (domain.EditJob, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+editJobColumns+` FROM edit_jobs WHERE id = $1`, id)

	var (
		job        domain.EditJob
		recipeJSON []byte
	)
	if err := row.Scan(
		&job.ID,
		&job.PhotoID,
		&job.UserID,
		&job.Username,
		&job.Status,
		&job.Title,
		&recipeJSON,
		&job.WebhookURL,
		&job.ResultPhotoID,
		&job.Error,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.EditJob{}, false, nil
		}
		return domain.EditJob{}, false, fmt.Errorf("query edit job: %w", err)
	}

	if err := json.Unmarshal(recipeJSON, &job.Recipe); err != nil {
		return domain.EditJob{}, false, fmt.Errorf("unmarshal edit recipe: %w", err)
	}
	return job, true, nil
}

func (s *PostgresStore) UpdateEditJobStatus(ctx context.Context, id, status string) (domain.EditJob, error) {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE edit_jobs SET status = $1, updated_at = $2 WHERE id = $3`,
		status,
		time.Now().UTC(),
		id,
	)
	if err != nil {
		return domain.EditJob{}, fmt.Errorf("update edit job status: %w", err)
	}
	return s.mustGetEditJob(ctx, id)
}

func (s *PostgresStore) FinishEditJob(ctx context.Context, id, status, resultPhotoID, errMsg string) (domain.EditJob, error) {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE edit_jobs
		 SET status = $1, result_photo_id = $2, error = $3, updated_at = $4
		 WHERE id = $5`,
		status,
		resultPhotoID,
		errMsg,
		time.Now().UTC(),
		id,
	)
	if err != nil {
		return domain.EditJob{}, fmt.Errorf("finish edit job: %w", err)
	}
	return s.mustGetEditJob(ctx, id)
}

func (s *PostgresStore) mustGetEditJob(ctx context.Context, id string) (domain.EditJob, error) {
	job, ok, err := s.GetEditJob(ctx, id)
	if err != nil {
		return domain.EditJob{}, err
	}
	if !ok {
		return domain.EditJob{}, ErrNotFound
	}
	return job, nil
}

func (s *PostgresStore) CreateUsageLog(ctx context.Context, usage domain.UsageLog) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO usage_logs (user_id, job_id, pixels_processed, bytes_in, bytes_out, compute_time_ms, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		usage.UserID,
		usage.JobID,
		usage.PixelsProcessed,
		usage.BytesIn,
		usage.BytesOut,
		usage.ComputeTimeMS,
		usage.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert usage log: %w", err)
	}
	return nil
}
