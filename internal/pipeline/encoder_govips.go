//go:build govips && cgo

package pipeline

import (
	"fmt"
	"image"
	"sync"

	"github.com/davidbyttow/govips/v2/vips"
	"github.com/dunamismax/photoflow/internal/editor"
	"github.com/dunamismax/photoflow/internal/raster"
)

// libvips can be started once per process; Shutdown is final.
var vipsState struct {
	mu      sync.Mutex
	running bool
	stopped bool
}

func Startup() error {
	vipsState.mu.Lock()
	defer vipsState.mu.Unlock()
	if vipsState.running {
		return nil
	}
	if vipsState.stopped {
		return fmt.Errorf("libvips was already shut down")
	}
	vips.LoggingSettings(nil, vips.LogLevelWarning)
	vips.Startup(&vips.Config{
		MaxCacheFiles: 0,
		MaxCacheMem:   64 << 20,
		MaxCacheSize:  50,
	})
	vipsState.running = true
	return nil
}

func Shutdown() {
	vipsState.mu.Lock()
	defer vipsState.mu.Unlock()
	if !vipsState.running {
		return
	}
	vips.Shutdown()
	vipsState.running = false
	vipsState.stopped = true
}

func newEncoder() (editor.Encoder, error) {
	if err := Startup(); err != nil {
		return nil, err
	}
	return govipsEncoder{}, nil
}

// govipsEncoder hands the raster to libvips through a lossless PNG and lets
// libvips produce the final encoding. GIF stays on the pure-Go codec.
type govipsEncoder struct{}

func (govipsEncoder) Encode(img image.Image, format string, quality int) ([]byte, error) {
	format = raster.NormalizeFormat(format)
	if format == raster.FormatGIF {
		return raster.Encode(img, format, quality)
	}

	lossless, err := raster.Encode(img, raster.FormatPNG, 0)
	if err != nil {
		return nil, err
	}
	ref, err := vips.NewImageFromBuffer(lossless)
	if err != nil {
		return nil, fmt.Errorf("load raster into vips: %w", err)
	}
	defer ref.Close()

	return exportGovipsImage(ref, format, quality)
}

func exportGovipsImage(img *vips.ImageRef, format string, quality int) ([]byte, error) {
	switch format {
	case raster.FormatJPEG:
		params := vips.NewJpegExportParams()
		if quality > 0 && quality <= 100 {
			params.Quality = quality
		}
		data, _, err := img.ExportJpeg(params)
		if err != nil {
			return nil, fmt.Errorf("encode jpeg: %w", err)
		}
		return data, nil
	case raster.FormatPNG:
		data, _, err := img.ExportPng(vips.NewPngExportParams())
		if err != nil {
			return nil, fmt.Errorf("encode png: %w", err)
		}
		return data, nil
	case raster.FormatWebP:
		params := vips.NewWebpExportParams()
		if quality > 0 && quality <= 100 {
			params.Quality = quality
		}
		data, _, err := img.ExportWebp(params)
		if err != nil {
			return nil, fmt.Errorf("encode webp: %w", err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("%w: %s", raster.ErrUnsupportedFormat, format)
	}
}
