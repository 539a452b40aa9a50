package queue

import (
	"context"
	"time"

	"github.com/dunamismax/photoflow/internal/config"
	"github.com/hibiken/asynq"
)

const (
	editMaxRetry  = 5
	editTimeout   = 3 * time.Minute
	editRetention = 24 * time.Hour
)

// Enqueuer is the part of Client the API depends on.
type Enqueuer interface {
	EnqueueEditPhoto(ctx context.Context, payload EditPhotoPayload) (*asynq.TaskInfo, error)
}

type Client struct {
	asynq *asynq.Client
	queue string
}

func NewClient(cfg config.QueueConfig) *Client {
	return &Client{
		asynq: asynq.NewClient(cfg.RedisClientOpt()),
		queue: cfg.Name,
	}
}

// EnqueueEditPhoto schedules one edit. The job id doubles as the task id, so
// a retried API call cannot enqueue the same edit twice; finished tasks are
// retained for a day for inspection.
func (c *Client) EnqueueEditPhoto(ctx context.Context, payload EditPhotoPayload) (*asynq.TaskInfo, error) {
	task, err := NewEditPhotoTask(payload)
	if err != nil {
		return nil, err
	}
	return c.asynq.EnqueueContext(ctx, task,
		asynq.Queue(c.queue),
		asynq.TaskID(payload.JobID),
		asynq.MaxRetry(editMaxRetry),
		asynq.Timeout(editTimeout),
		asynq.Retention(editRetention),
	)
}

func (c *Client) Close() error {
	return c.asynq.Close()
}
