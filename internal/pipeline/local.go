package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dunamismax/photoflow/internal/editor"
	"github.com/dunamismax/photoflow/internal/raster"
)

type LocalFileFetcher struct{}

func (LocalFileFetcher) Fetch(ctx context.Context, req Request) ([]byte, error) {
	if strings.TrimSpace(req.SourcePath) == "" {
		return nil, fmt.Errorf("%w: local fetcher needs a source path", ErrUnsupportedSourceType)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	data, err := os.ReadFile(req.SourcePath)
	if err != nil {
		return nil, fmt.Errorf("read input file %s: %w", req.SourcePath, err)
	}
	return data, nil
}

// LocalFileEmitter writes <OutputDir>/<job>/edited.<ext>, or exactly Path
// when set.
type LocalFileEmitter struct {
	OutputDir string
	Path      string
}

func (e LocalFileEmitter) Emit(_ context.Context, req Request, blob editor.Blob) (Output, error) {
	fullPath := e.Path
	if fullPath == "" {
		if strings.TrimSpace(e.OutputDir) == "" {
			return Output{}, errors.New("output directory is required")
		}
		jobDir := filepath.Join(e.OutputDir, sanitizePathToken(req.JobID))
		fullPath = filepath.Join(jobDir, "edited."+raster.Extension(blob.Format))
	}

	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return Output{}, fmt.Errorf("create output dir: %w", err)
	}
	if err := os.WriteFile(fullPath, blob.Data, 0o644); err != nil {
		return Output{}, fmt.Errorf("write output file: %w", err)
	}

	return outputFor(blob, fullPath, ""), nil
}

func outputFor(blob editor.Blob, path, photoID string) Output {
	return Output{
		PhotoID:     photoID,
		Path:        path,
		Format:      blob.Format,
		ContentType: blob.ContentType,
		Bytes:       blob.Size(),
		Width:       blob.Width,
		Height:      blob.Height,
	}
}

func sanitizePathToken(in string) string {
	in = strings.TrimSpace(in)
	if in == "" {
		return "unknown"
	}

	var b strings.Builder
	b.Grow(len(in))
	for _, r := range in {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
