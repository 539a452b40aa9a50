package domain

import "time"

// UsageLog records the cost of one finished edit job.
type UsageLog struct {
	UserID          string
	JobID           string
	PixelsProcessed int64
	BytesIn         int64
	BytesOut        int64
	ComputeTimeMS   int64
	CreatedAt       time.Time
}
