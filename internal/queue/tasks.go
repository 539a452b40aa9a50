package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dunamismax/photoflow/internal/domain"
	"github.com/hibiken/asynq"
)

const TypeEditPhoto = "photo:edit"

var ErrInvalidPayload = errors.New("invalid edit payload")

type EditPhotoPayload struct {
	JobID       string            `json:"job_id"`
	PhotoID     string            `json:"photo_id"`
	UserID      string            `json:"user_id"`
	Username    string            `json:"username"`
	Title       string            `json:"title,omitempty"`
	WebhookURL  string            `json:"webhook_url,omitempty"`
	Recipe      domain.EditRecipe `json:"recipe"`
	RequestedAt time.Time         `json:"requested_at"`
}

// PayloadFor builds the task payload for a recorded edit job.
func PayloadFor(job domain.EditJob, now time.Time) EditPhotoPayload {
	return EditPhotoPayload{
		JobID:       job.ID,
		PhotoID:     job.PhotoID,
		UserID:      job.UserID,
		Username:    job.Username,
		Title:       job.Title,
		WebhookURL:  job.WebhookURL,
		Recipe:      job.Recipe,
		RequestedAt: now.UTC(),
	}
}

func NewEditPhotoTask(payload EditPhotoPayload) (*asynq.Task, error) {
	if payload.JobID == "" || payload.PhotoID == "" {
		return nil, fmt.Errorf("%w: job_id and photo_id are required", ErrInvalidPayload)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal edit payload: %w", err)
	}
	return asynq.NewTask(TypeEditPhoto, body), nil
}

func ParseEditPhotoPayload(task *asynq.Task) (EditPhotoPayload, error) {
	var payload EditPhotoPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return EditPhotoPayload{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if payload.JobID == "" || payload.PhotoID == "" {
		return EditPhotoPayload{}, fmt.Errorf("%w: job_id and photo_id are required", ErrInvalidPayload)
	}
	return payload, nil
}
