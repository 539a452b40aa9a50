package editor

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// ImageFetcher returns the raw bytes of a stored photo. Transport, auth and
// retries belong to the implementation.
type ImageFetcher interface {
	GetImageByID(ctx context.Context, id string) ([]byte, error)
}

type FetcherFunc func(ctx context.Context, id string) ([]byte, error)

func (f FetcherFunc) GetImageByID(ctx context.Context, id string) ([]byte, error) {
	return f(ctx, id)
}

// Source selects the image an edit session starts from: encoded bytes, a
// local file, or a stored photo fetched by ID. The first non-empty field wins.
type Source struct {
	Data    []byte
	Path    string
	PhotoID string
}

func (s Source) String() string {
	switch {
	case len(s.Data) > 0:
		return fmt.Sprintf("bytes(%d)", len(s.Data))
	case s.Path != "":
		return "file:" + s.Path
	case s.PhotoID != "":
		return "photo:" + s.PhotoID
	default:
		return "none"
	}
}

func resolveSource(ctx context.Context, fetcher ImageFetcher, src Source) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch {
	case len(src.Data) > 0:
		return src.Data, nil
	case strings.TrimSpace(src.Path) != "":
		data, err := os.ReadFile(src.Path)
		if err != nil {
			return nil, fmt.Errorf("read source file %s: %w", src.Path, err)
		}
		return data, nil
	case strings.TrimSpace(src.PhotoID) != "":
		if fetcher == nil {
			return nil, &ValidationError{Field: "source", Reason: "no image fetcher configured for photo sources"}
		}
		data, err := fetcher.GetImageByID(ctx, src.PhotoID)
		if err != nil {
			return nil, fmt.Errorf("fetch photo %s: %w", src.PhotoID, err)
		}
		return data, nil
	default:
		return nil, &ValidationError{Field: "source", Reason: "source is required"}
	}
}
