// Package raster holds the in-memory pixel buffers the edit pipeline passes
// between stages, decoupled from any rendering surface.
package raster

import (
	"bytes"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// Buffer is a width x height grid of non-premultiplied 8-bit RGBA pixels with
// its origin at (0,0). A Buffer is owned by exactly one stage at a time; hand
// it to another stage with Clone.
type Buffer struct {
	img *image.NRGBA
}

func New(width, height int) *Buffer {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	return &Buffer{img: image.NewNRGBA(image.Rect(0, 0, width, height))}
}

// FromImage copies img into a new Buffer, converting its color model and
// moving its origin to (0,0).
func FromImage(img image.Image) *Buffer {
	if nrgba, ok := img.(*image.NRGBA); ok && nrgba.Rect.Min == (image.Point{}) {
		return (&Buffer{img: nrgba}).Clone()
	}
	return &Buffer{img: imaging.Clone(img)}
}

func (b *Buffer) Width() int {
	return b.img.Rect.Dx()
}

func (b *Buffer) Height() int {
	return b.img.Rect.Dy()
}

func (b *Buffer) Bounds() image.Rectangle {
	return b.img.Rect
}

func (b *Buffer) Empty() bool {
	return b == nil || b.Width() == 0 || b.Height() == 0
}

func (b *Buffer) Pixel(x, y int) color.NRGBA {
	return b.img.NRGBAAt(x, y)
}

func (b *Buffer) SetPixel(x, y int, c color.NRGBA) {
	b.img.SetNRGBA(x, y, c)
}

// Image exposes the buffer for read-only use by encoders and image/draw.
func (b *Buffer) Image() image.Image {
	return b.img
}

// NRGBA returns the backing image. Callers mutating it must own the buffer.
func (b *Buffer) NRGBA() *image.NRGBA {
	return b.img
}

func (b *Buffer) Clone() *Buffer {
	dst := image.NewNRGBA(b.img.Rect)
	copy(dst.Pix, b.img.Pix)
	return &Buffer{img: dst}
}

// Crop copies rect out of the buffer into a new Buffer. rect is clipped to
// the buffer bounds.
func (b *Buffer) Crop(rect image.Rectangle) *Buffer {
	return &Buffer{img: imaging.Crop(b.img, rect)}
}

func (b *Buffer) Equal(other *Buffer) bool {
	if b == nil || other == nil {
		return b == other
	}
	if b.img.Rect.Size() != other.img.Rect.Size() {
		return false
	}
	rowBytes := b.Width() * 4
	for y := 0; y < b.Height(); y++ {
		left := b.img.Pix[y*b.img.Stride : y*b.img.Stride+rowBytes]
		right := other.img.Pix[y*other.img.Stride : y*other.img.Stride+rowBytes]
		if !bytes.Equal(left, right) {
			return false
		}
	}
	return true
}
