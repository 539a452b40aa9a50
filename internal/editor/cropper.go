package editor

import (
	"image"
	"math"
)

const (
	MinZoom = 1.0
	MaxZoom = 3.0
)

// Handle identifies the selection corner being dragged.
type Handle int

const (
	HandleTopLeft Handle = iota
	HandleTopRight
	HandleBottomLeft
	HandleBottomRight
)

// Cropper tracks the interactive crop selection for one source image. The
// aspect constraint is enforced on every edit, so a committed selection
// always matches it within one pixel of rounding.
type Cropper struct {
	srcW, srcH int
	preset     AspectPreset
	zoom       float64
	region     Region
	selected   bool
}

// NewCropper starts with the source's own aspect ratio, zoom 1 and nothing
// selected.
func NewCropper(srcW, srcH int) *Cropper {
	return &Cropper{
		srcW:   srcW,
		srcH:   srcH,
		preset: AspectOriginal,
		zoom:   MinZoom,
	}
}

func (c *Cropper) SourceSize() (int, int) {
	return c.srcW, c.srcH
}

func (c *Cropper) Aspect() AspectPreset {
	return c.preset
}

func (c *Cropper) Ratio() (float64, bool) {
	return c.preset.Ratio(c.srcW, c.srcH)
}

// SetAspect switches the constraint and refits an existing selection around
// its centre.
func (c *Cropper) SetAspect(p AspectPreset) error {
	if _, err := ParseAspectPreset(string(p)); err != nil {
		return err
	}
	c.preset = p
	if c.selected {
		c.region = c.constrain(c.region)
	}
	return nil
}

func (c *Cropper) Zoom() float64 {
	return c.zoom
}

// SetZoom clamps z to [MinZoom, MaxZoom] and returns the applied value. Zoom
// only affects Viewport.
func (c *Cropper) SetZoom(z float64) float64 {
	if math.IsNaN(z) || z < MinZoom {
		z = MinZoom
	}
	if z > MaxZoom {
		z = MaxZoom
	}
	c.zoom = z
	return z
}

// Viewport is the part of the source visible at the current zoom, centred on
// the selection when there is one.
func (c *Cropper) Viewport() image.Rectangle {
	w := int(math.Round(float64(c.srcW) / c.zoom))
	h := int(math.Round(float64(c.srcH) / c.zoom))
	cx, cy := float64(c.srcW)/2, float64(c.srcH)/2
	if c.selected {
		cx = float64(c.region.X) + float64(c.region.Width)/2
		cy = float64(c.region.Y) + float64(c.region.Height)/2
	}
	x := clampInt(int(math.Round(cx-float64(w)/2)), 0, c.srcW-w)
	y := clampInt(int(math.Round(cy-float64(h)/2)), 0, c.srcH-h)
	return image.Rect(x, y, x+w, y+h)
}

// Fit selects the largest centred region that satisfies the constraint.
func (c *Cropper) Fit() Region {
	c.region = c.constrain(Region{Width: c.srcW, Height: c.srcH})
	c.selected = true
	return c.region
}

// Select replaces the selection with r, clipped to the source and shrunk to
// the aspect constraint around its centre.
func (c *Cropper) Select(r Region) (Region, error) {
	clipped := RegionFromRect(r.Rect().Intersect(image.Rect(0, 0, c.srcW, c.srcH)))
	if clipped.Empty() {
		return Region{}, validationf("crop", "selection %v lies outside the %dx%d source", r.Rect(), c.srcW, c.srcH)
	}
	c.region = c.constrain(clipped)
	c.selected = true
	return c.region, nil
}

// Resize drags corner h to (x, y) while the opposite corner stays put. The
// selection never flips and never leaves the source.
func (c *Cropper) Resize(h Handle, x, y int) Region {
	if !c.selected {
		c.Fit()
	}
	r := c.region

	var (
		anchorX, anchorY int
		wantW, wantH     float64
		maxW, maxH       int
	)
	switch h {
	case HandleTopLeft:
		anchorX, anchorY = r.X+r.Width, r.Y+r.Height
		wantW, wantH = float64(anchorX-x), float64(anchorY-y)
		maxW, maxH = anchorX, anchorY
	case HandleTopRight:
		anchorX, anchorY = r.X, r.Y+r.Height
		wantW, wantH = float64(x-anchorX), float64(anchorY-y)
		maxW, maxH = c.srcW-anchorX, anchorY
	case HandleBottomLeft:
		anchorX, anchorY = r.X+r.Width, r.Y
		wantW, wantH = float64(anchorX-x), float64(y-anchorY)
		maxW, maxH = anchorX, c.srcH-anchorY
	default:
		anchorX, anchorY = r.X, r.Y
		wantW, wantH = float64(x-anchorX), float64(y-anchorY)
		maxW, maxH = c.srcW-anchorX, c.srcH-anchorY
	}

	w, hh := c.size(wantW, wantH, maxW, maxH)

	out := Region{Width: w, Height: hh}
	switch h {
	case HandleTopLeft:
		out.X, out.Y = anchorX-w, anchorY-hh
	case HandleTopRight:
		out.X, out.Y = anchorX, anchorY-hh
	case HandleBottomLeft:
		out.X, out.Y = anchorX-w, anchorY
	default:
		out.X, out.Y = anchorX, anchorY
	}
	c.region = out
	return out
}

// Pan moves the selection by (dx, dy), stopping at the source edges.
func (c *Cropper) Pan(dx, dy int) Region {
	if !c.selected {
		c.Fit()
	}
	c.region.X = clampInt(c.region.X+dx, 0, c.srcW-c.region.Width)
	c.region.Y = clampInt(c.region.Y+dy, 0, c.srcH-c.region.Height)
	return c.region
}

func (c *Cropper) Selection() (Region, bool) {
	return c.region, c.selected
}

// Clear drops the selection.
func (c *Cropper) Clear() {
	c.region = Region{}
	c.selected = false
}

// Commit returns the selected region or a ValidationError when nothing has
// been selected.
func (c *Cropper) Commit() (Region, error) {
	if !c.selected {
		return Region{}, &ValidationError{Field: "crop", Reason: "no crop area selected"}
	}
	if err := c.region.Validate(c.srcW, c.srcH); err != nil {
		return Region{}, err
	}
	return c.region, nil
}

// constrain shrinks r to the aspect ratio around its centre and keeps it
// inside the source.
func (c *Cropper) constrain(r Region) Region {
	w, h := c.size(float64(r.Width), float64(r.Height), c.srcW, c.srcH)
	cx := float64(r.X) + float64(r.Width)/2
	cy := float64(r.Y) + float64(r.Height)/2
	x := clampInt(int(math.Round(cx-float64(w)/2)), 0, c.srcW-w)
	y := clampInt(int(math.Round(cy-float64(h)/2)), 0, c.srcH-h)
	return Region{X: x, Y: y, Width: w, Height: h}
}

// size picks integer dimensions no larger than maxW x maxH that approximate
// the wanted box and satisfy the aspect ratio. The longer side is derived
// from the shorter one so the rounding error stays under one pixel.
func (c *Cropper) size(wantW, wantH float64, maxW, maxH int) (int, int) {
	maxW = max(1, maxW)
	maxH = max(1, maxH)
	wantW = math.Max(1, wantW)
	wantH = math.Max(1, wantH)

	ratio, ok := c.Ratio()
	if !ok {
		return clampInt(int(math.Round(wantW)), 1, maxW), clampInt(int(math.Round(wantH)), 1, maxH)
	}

	if wantW/wantH > ratio {
		wantW = wantH * ratio
	} else {
		wantH = wantW / ratio
	}

	if ratio >= 1 {
		h := clampInt(int(math.Round(wantH)), 1, maxH)
		if limit := int(math.Floor(float64(maxW)/ratio + 1e-9)); h > limit {
			h = max(1, limit)
		}
		w := clampInt(int(math.Round(float64(h)*ratio)), 1, maxW)
		return w, h
	}

	w := clampInt(int(math.Round(wantW)), 1, maxW)
	if limit := int(math.Floor(float64(maxH)*ratio + 1e-9)); w > limit {
		w = max(1, limit)
	}
	h := clampInt(int(math.Round(float64(w)/ratio)), 1, maxH)
	return w, h
}

func clampInt(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
