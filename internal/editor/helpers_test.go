package editor

import (
	"image/color"
	"testing"

	"github.com/dunamismax/photoflow/internal/raster"
	"github.com/stretchr/testify/require"
)

func testBuffer(w, h int) *raster.Buffer {
	buf := raster.New(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			buf.SetPixel(x, y, color.NRGBA{
				R: uint8((x * 255) / w),
				G: uint8((y * 255) / h),
				B: 140,
				A: 255,
			})
		}
	}
	return buf
}

func solidBuffer(w, h int, c color.NRGBA) *raster.Buffer {
	buf := raster.New(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			buf.SetPixel(x, y, c)
		}
	}
	return buf
}

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()

	data, err := raster.Encode(testBuffer(w, h).Image(), raster.FormatPNG, 0)
	require.NoError(t, err)
	return data
}
