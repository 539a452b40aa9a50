package domain

import "time"

const (
	JobStatusCreated    = "created"
	JobStatusQueued     = "queued"
	JobStatusProcessing = "processing"
	JobStatusSucceeded  = "succeeded"
	JobStatusFailed     = "failed"
)

// EditRecipe is a replayable description of one editor session: an optional
// crop, then strokes and text stamps, then filters, then the export encoding.
type EditRecipe struct {
	Crop    *CropStep      `json:"crop,omitempty"`
	Strokes []StrokeStep   `json:"strokes,omitempty" validate:"max=500,dive"`
	Texts   []TextStep     `json:"texts,omitempty" validate:"max=50,dive"`
	Filters *FilterStep    `json:"filters,omitempty"`
	Output  OutputSettings `json:"output"`
}

type CropStep struct {
	X      int     `json:"x" validate:"gte=0"`
	Y      int     `json:"y" validate:"gte=0"`
	Width  int     `json:"width" validate:"gt=0"`
	Height int     `json:"height" validate:"gt=0"`
	Aspect string  `json:"aspect,omitempty" validate:"omitempty,oneof=free original 1:1 4:3 16:9 3:4 9:16"`
	Zoom   float64 `json:"zoom,omitempty" validate:"omitempty,gte=1,lte=3"`
}

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type StrokeStep struct {
	Color  string  `json:"color,omitempty" validate:"omitempty,hexcolor"`
	Width  float64 `json:"width,omitempty" validate:"omitempty,gte=1,lte=20"`
	Points []Point `json:"points" validate:"min=1,max=10000"`
}

type TextStep struct {
	Text  string `json:"text" validate:"required,max=200"`
	Color string `json:"color,omitempty" validate:"omitempty,hexcolor"`
}

// FilterStep holds percentages; 100 is neutral.
type FilterStep struct {
	Brightness float64 `json:"brightness" validate:"gte=50,lte=150"`
	Contrast   float64 `json:"contrast" validate:"gte=50,lte=150"`
	Saturation float64 `json:"saturation" validate:"gte=0,lte=200"`
}

type OutputSettings struct {
	Format  string `json:"format,omitempty" validate:"omitempty,oneof=jpeg jpg png gif webp"`
	Quality int    `json:"quality,omitempty" validate:"omitempty,gte=1,lte=100"`
}

type CreateEditRequest struct {
	Recipe     EditRecipe `json:"recipe"`
	Title      string     `json:"title,omitempty" validate:"max=200"`
	WebhookURL string     `json:"webhook_url,omitempty" validate:"omitempty,url"`
}

// EditJob tracks one asynchronous recipe run against a stored photo.
type EditJob struct {
	ID            string     `json:"id"`
	PhotoID       string     `json:"photo_id"`
	UserID        string     `json:"-"`
	Username      string     `json:"-"`
	Status        string     `json:"status"`
	Title         string     `json:"title,omitempty"`
	Recipe        EditRecipe `json:"recipe"`
	WebhookURL    string     `json:"webhook_url,omitempty"`
	ResultPhotoID string     `json:"result_photo_id,omitempty"`
	Error         string     `json:"error,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func (j EditJob) Finished() bool {
	return j.Status == JobStatusSucceeded || j.Status == JobStatusFailed
}
