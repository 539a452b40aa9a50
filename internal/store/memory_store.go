package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dunamismax/photoflow/internal/domain"
)

type MemoryStore struct {
	mu     sync.RWMutex
	photos map[string]domain.Photo
	jobs   map[string]domain.EditJob
	usage  []domain.UsageLog
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		photos: make(map[string]domain.Photo),
		jobs:   make(map[string]domain.EditJob),
	}
}

func (s *MemoryStore) Close() error {
	return nil
}

func (s *MemoryStore) CreatePhoto(_ context.Context, photo domain.Photo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.photos[photo.ID] = photo
	return nil
}

func (s *MemoryStore) GetPhoto(_ context.Context, id string) (domain.Photo, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	photo, ok := s.photos[id]
	return photo, ok, nil
}

func (s *MemoryStore) ListPhotos(_ context.Context, userID string) ([]domain.Photo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Photo, 0)
	for _, photo := range s.photos {
		if photo.UserID == userID {
			out = append(out, photo)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) DeletePhoto(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.photos[id]; !ok {
		return ErrNotFound
	}
	delete(s.photos, id)
	return nil
}

func (s *MemoryStore) CreateEditJob(_ context.Context, job domain.EditJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
	return nil
}

func (s *MemoryStore) GetEditJob(_ context.Context, id string) (domain.EditJob, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	return job, ok, nil
}

func (s *MemoryStore) UpdateEditJobStatus(_ context.Context, id, status string) (domain.EditJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return domain.EditJob{}, ErrNotFound
	}
	job.Status = status
	job.UpdatedAt = time.Now().UTC()
	s.jobs[id] = job
	return job, nil
}

func (s *MemoryStore) FinishEditJob(_ context.Context, id, status, resultPhotoID, errMsg string) (domain.EditJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return domain.EditJob{}, ErrNotFound
	}
	job.Status = status
	job.ResultPhotoID = resultPhotoID
	job.Error = errMsg
	job.UpdatedAt = time.Now().UTC()
	s.jobs[id] = job
	return job, nil
}

func (s *MemoryStore) CreateUsageLog(_ context.Context, usage domain.UsageLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usage = append(s.usage, usage)
	return nil
}

func (s *MemoryStore) UsageLogs() []domain.UsageLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.UsageLog(nil), s.usage...)
}
