package domain

import (
	"strings"
	"time"
)

// Photo is the metadata of one stored image. The bytes live in the blob
// store under BlobName.
type Photo struct {
	ID          string    `json:"id"`
	UserID      string    `json:"-"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	BlobName    string    `json:"-"`
	BlobURL     string    `json:"blob_url"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	Width       int       `json:"width,omitempty"`
	Height      int       `json:"height,omitempty"`
	EditedFrom  string    `json:"edited_from,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

var AllowedContentTypes = []string{
	"image/jpeg",
	"image/png",
	"image/gif",
	"image/webp",
}

func IsAllowedContentType(contentType string) bool {
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	for _, allowed := range AllowedContentTypes {
		if contentType == allowed {
			return true
		}
	}
	return false
}

// PhotoUpload carries the form fields sent alongside uploaded files.
type PhotoUpload struct {
	Title       string `json:"title" validate:"max=200"`
	Description string `json:"description" validate:"max=2000"`
}

// PhotoSummary is the listing view of a photo.
type PhotoSummary struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	BlobURL     string    `json:"blob_url"`
	EditedFrom  string    `json:"edited_from,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func (p Photo) Summary() PhotoSummary {
	return PhotoSummary{
		ID:          p.ID,
		Title:       p.Title,
		Description: p.Description,
		BlobURL:     p.BlobURL,
		EditedFrom:  p.EditedFrom,
		CreatedAt:   p.CreatedAt,
	}
}

// PhotoExport is one row of a user's export listing.
type PhotoExport struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	BlobURL     string    `json:"blob_url"`
	Size        int64     `json:"size"`
	CreatedAt   time.Time `json:"created_at"`
}

func (p Photo) Export() PhotoExport {
	return PhotoExport{
		Title:       p.Title,
		Description: p.Description,
		BlobURL:     p.BlobURL,
		Size:        p.Size,
		CreatedAt:   p.CreatedAt,
	}
}

// StorageUsage compares the bytes a user's photos occupy with their quota.
type StorageUsage struct {
	UsedBytes  int64 `json:"used_bytes"`
	TotalBytes int64 `json:"total_bytes"`
	PhotoCount int   `json:"photo_count"`
}

func UsageOf(photos []Photo, quota int64) StorageUsage {
	usage := StorageUsage{TotalBytes: quota, PhotoCount: len(photos)}
	for _, p := range photos {
		usage.UsedBytes += p.Size
	}
	return usage
}

// RemainingBytes never goes below zero.
func (u StorageUsage) RemainingBytes() int64 {
	return max(0, u.TotalBytes-u.UsedBytes)
}
