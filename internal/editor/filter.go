package editor

import (
	"math"

	"github.com/dunamismax/photoflow/internal/raster"
)

// FilterParameters are percentage multipliers; 100 leaves a channel as is.
type FilterParameters struct {
	Brightness float64 `json:"brightness"`
	Contrast   float64 `json:"contrast"`
	Saturation float64 `json:"saturation"`
}

func DefaultFilters() FilterParameters {
	return FilterParameters{Brightness: 100, Contrast: 100, Saturation: 100}
}

func (p FilterParameters) IsIdentity() bool {
	return p == DefaultFilters()
}

// ApplyFilters returns a new buffer with brightness, contrast and saturation
// applied to every pixel, in that order. Alpha is copied unchanged and src is
// not modified.
func ApplyFilters(src *raster.Buffer, p FilterParameters) *raster.Buffer {
	out := src.Clone()
	if p.IsIdentity() {
		return out
	}

	bf := p.Brightness / 100
	cf := p.Contrast / 100
	sf := p.Saturation / 100

	img := out.NRGBA()
	w, h := out.Width(), out.Height()
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+w*4]
		for i := 0; i < len(row); i += 4 {
			r := float64(row[i]) * bf
			g := float64(row[i+1]) * bf
			b := float64(row[i+2]) * bf

			r = ((r/255-0.5)*cf + 0.5) * 255
			g = ((g/255-0.5)*cf + 0.5) * 255
			b = ((b/255-0.5)*cf + 0.5) * 255

			luma := 0.2989*r + 0.587*g + 0.114*b
			r = luma + sf*(r-luma)
			g = luma + sf*(g-luma)
			b = luma + sf*(b-luma)

			row[i] = clampChannel(r)
			row[i+1] = clampChannel(g)
			row[i+2] = clampChannel(b)
		}
	}
	return out
}

func clampChannel(v float64) uint8 {
	if math.IsNaN(v) || v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(math.Round(v))
}
