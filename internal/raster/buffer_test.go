package raster

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gradient(w, h int) *Buffer {
	buf := New(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			buf.SetPixel(x, y, color.NRGBA{R: uint8(x * 255 / w), G: uint8(y * 255 / h), B: 140, A: 255})
		}
	}
	return buf
}

func TestCloneIsIndependent(t *testing.T) {
	src := gradient(8, 6)
	dup := src.Clone()
	require.True(t, src.Equal(dup))

	dup.SetPixel(0, 0, color.NRGBA{A: 255})
	assert.False(t, src.Equal(dup))
	assert.NotEqual(t, src.Pixel(0, 0), dup.Pixel(0, 0))
}

func TestFromImageMovesOriginToZero(t *testing.T) {
	rgba := image.NewRGBA(image.Rect(5, 5, 15, 10))
	rgba.Set(5, 5, color.RGBA{R: 255, A: 255})

	buf := FromImage(rgba)
	assert.Equal(t, image.Rect(0, 0, 10, 5), buf.Bounds())
	assert.Equal(t, color.NRGBA{R: 255, A: 255}, buf.Pixel(0, 0))
}

func TestCropCopiesRegion(t *testing.T) {
	src := gradient(20, 20)
	sub := src.Crop(image.Rect(4, 6, 10, 16))

	require.Equal(t, 6, sub.Width())
	require.Equal(t, 10, sub.Height())
	for y := 0; y < sub.Height(); y++ {
		for x := 0; x < sub.Width(); x++ {
			if sub.Pixel(x, y) != src.Pixel(x+4, y+6) {
				t.Fatalf("pixel mismatch at %d,%d", x, y)
			}
		}
	}
}

func TestEqualComparesSizes(t *testing.T) {
	assert.False(t, New(2, 3).Equal(New(3, 2)))
	assert.True(t, New(0, 0).Empty())
	var nilBuf *Buffer
	assert.True(t, nilBuf.Empty())
}
