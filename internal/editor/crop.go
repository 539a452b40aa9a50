package editor

import (
	"fmt"
	"image"
	"strings"

	"github.com/dunamismax/photoflow/internal/raster"
)

// Region is a crop rectangle in source pixel coordinates.
type Region struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

func RegionFromRect(r image.Rectangle) Region {
	return Region{X: r.Min.X, Y: r.Min.Y, Width: r.Dx(), Height: r.Dy()}
}

func (r Region) Rect() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
}

func (r Region) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Validate checks that r is non-empty and lies inside a srcW x srcH source.
func (r Region) Validate(srcW, srcH int) error {
	if r.Empty() {
		return validationf("crop", "region %dx%d must have positive width and height", r.Width, r.Height)
	}
	if r.X < 0 || r.Y < 0 || r.X+r.Width > srcW || r.Y+r.Height > srcH {
		return validationf("crop", "region %v exceeds source bounds %dx%d", r.Rect(), srcW, srcH)
	}
	return nil
}

// AspectPreset names one of the fixed crop aspect constraints.
type AspectPreset string

const (
	AspectFree     AspectPreset = "free"
	AspectOriginal AspectPreset = "original"
	AspectSquare   AspectPreset = "1:1"
	Aspect4x3      AspectPreset = "4:3"
	Aspect16x9     AspectPreset = "16:9"
	Aspect3x4      AspectPreset = "3:4"
	Aspect9x16     AspectPreset = "9:16"
)

var presetRatios = map[AspectPreset]float64{
	AspectSquare: 1,
	Aspect4x3:    4.0 / 3.0,
	Aspect16x9:   16.0 / 9.0,
	Aspect3x4:    3.0 / 4.0,
	Aspect9x16:   9.0 / 16.0,
}

func AspectPresets() []AspectPreset {
	return []AspectPreset{AspectFree, AspectOriginal, AspectSquare, Aspect4x3, Aspect16x9, Aspect3x4, Aspect9x16}
}

// ParseAspectPreset accepts a preset name; the empty string means free.
func ParseAspectPreset(s string) (AspectPreset, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return AspectFree, nil
	}
	for _, p := range AspectPresets() {
		if string(p) == s {
			return p, nil
		}
	}
	return "", validationf("aspect", "unknown aspect preset %q", s)
}

// Ratio returns width/height for the preset. ok is false for free-form crops.
// Original uses the natural source size.
func (p AspectPreset) Ratio(srcW, srcH int) (ratio float64, ok bool) {
	switch p {
	case AspectFree, "":
		return 0, false
	case AspectOriginal:
		if srcW <= 0 || srcH <= 0 {
			return 0, false
		}
		return float64(srcW) / float64(srcH), true
	default:
		ratio, ok = presetRatios[p]
		return ratio, ok
	}
}

// ExtractRegion copies region out of src into a new buffer sized exactly
// region.Width x region.Height.
func ExtractRegion(src *raster.Buffer, region Region) (*raster.Buffer, error) {
	if src.Empty() {
		return nil, ErrNoSource
	}
	if err := region.Validate(src.Width(), src.Height()); err != nil {
		return nil, err
	}

	out := src.Crop(region.Rect())
	if out.Width() != region.Width || out.Height() != region.Height {
		return nil, fmt.Errorf("extract region %v: got %dx%d", region.Rect(), out.Width(), out.Height())
	}
	return out, nil
}
