package raster

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

const (
	FormatJPEG = "jpeg"
	FormatPNG  = "png"
	FormatGIF  = "gif"
	FormatWebP = "webp"

	DefaultQuality = 95
)

var (
	ErrEmptyImage        = errors.New("image has zero dimensions")
	ErrUnsupportedFormat = errors.New("unsupported image format")
)

// Decode reads an encoded image and returns it as a Buffer together with the
// detected format name. EXIF orientation is applied for JPEG sources.
func Decode(data []byte) (*Buffer, string, error) {
	if len(data) == 0 {
		return nil, "", fmt.Errorf("decode image: %w", ErrEmptyImage)
	}

	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decode image config: %w", err)
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, "", fmt.Errorf("decode %s image: %w", format, err)
	}

	buf := FromImage(img)
	if buf.Empty() {
		return nil, "", fmt.Errorf("decode %s image: %w", format, ErrEmptyImage)
	}
	return buf, NormalizeFormat(format), nil
}

// Probe reads only the header of an encoded image and reports its size and
// format.
func Probe(data []byte) (width, height int, format string, err error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, "", fmt.Errorf("decode image config: %w", err)
	}
	return cfg.Width, cfg.Height, NormalizeFormat(format), nil
}

// Encode serializes img in the given format. quality applies to lossy
// formats and falls back to DefaultQuality when outside 1..100.
func Encode(img image.Image, format string, quality int) ([]byte, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, ErrEmptyImage
	}
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}

	var buf bytes.Buffer
	switch NormalizeFormat(format) {
	case FormatJPEG:
		if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
			return nil, fmt.Errorf("encode jpeg: %w", err)
		}
	case FormatPNG:
		if err := imaging.Encode(&buf, img, imaging.PNG, imaging.PNGCompressionLevel(png.DefaultCompression)); err != nil {
			return nil, fmt.Errorf("encode png: %w", err)
		}
	case FormatGIF:
		if err := imaging.Encode(&buf, img, imaging.GIF); err != nil {
			return nil, fmt.Errorf("encode gif: %w", err)
		}
	case FormatWebP:
		data, err := encodeWebP(img, quality)
		if err != nil {
			return nil, fmt.Errorf("encode webp: %w", err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	return buf.Bytes(), nil
}

// NormalizeFormat maps format aliases onto the canonical names above. An
// empty format selects JPEG, the editor's export default.
func NormalizeFormat(format string) string {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "jpg", "jpeg", "image/jpeg":
		return FormatJPEG
	case "png", "image/png":
		return FormatPNG
	case "gif", "image/gif":
		return FormatGIF
	case "webp", "image/webp":
		return FormatWebP
	default:
		return strings.ToLower(strings.TrimSpace(format))
	}
}

func ContentType(format string) string {
	switch NormalizeFormat(format) {
	case FormatPNG:
		return "image/png"
	case FormatGIF:
		return "image/gif"
	case FormatWebP:
		return "image/webp"
	default:
		return "image/jpeg"
	}
}

// Extension returns the file extension for format, without the dot.
func Extension(format string) string {
	switch f := NormalizeFormat(format); f {
	case FormatJPEG:
		return "jpg"
	default:
		return f
	}
}
