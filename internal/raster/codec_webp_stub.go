//go:build !cgo

package raster

import (
	"errors"
	"image"
)

func encodeWebP(image.Image, int) ([]byte, error) {
	return nil, errors.New("webp export requires cgo")
}
