package editor

import (
	"context"
	"image"

	"github.com/dunamismax/photoflow/internal/raster"
)

// Encoder turns a raster into an encoded image.
type Encoder interface {
	Encode(img image.Image, format string, quality int) ([]byte, error)
}

type EncoderFunc func(img image.Image, format string, quality int) ([]byte, error)

func (f EncoderFunc) Encode(img image.Image, format string, quality int) ([]byte, error) {
	return f(img, format, quality)
}

// DefaultEncoder encodes with the pure-Go codecs in package raster.
var DefaultEncoder Encoder = EncoderFunc(raster.Encode)

// Blob is an encoded export ready for upload.
type Blob struct {
	Data        []byte
	ContentType string
	Format      string
	Width       int
	Height      int
}

func (b Blob) Size() int {
	return len(b.Data)
}

// EncodeBuffer serializes buf into a Blob. Empty rasters and encoder failures
// are reported as *EncodingError.
func EncodeBuffer(ctx context.Context, enc Encoder, buf *raster.Buffer, format string, quality int) (Blob, error) {
	if err := ctx.Err(); err != nil {
		return Blob{}, err
	}
	if buf.Empty() {
		return Blob{}, &EncodingError{Err: raster.ErrEmptyImage}
	}
	if enc == nil {
		enc = DefaultEncoder
	}
	if quality <= 0 || quality > 100 {
		quality = raster.DefaultQuality
	}

	format = raster.NormalizeFormat(format)
	data, err := enc.Encode(buf.Image(), format, quality)
	if err != nil {
		return Blob{}, &EncodingError{Err: err}
	}
	if len(data) == 0 {
		return Blob{}, &EncodingError{Err: raster.ErrEmptyImage}
	}

	return Blob{
		Data:        data,
		ContentType: raster.ContentType(format),
		Format:      format,
		Width:       buf.Width(),
		Height:      buf.Height(),
	}, nil
}
