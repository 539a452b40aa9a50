package editor

import (
	"image/color"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/dunamismax/photoflow/internal/raster"
	"golang.org/x/image/font"
)

const (
	DefaultBrushWidth = 3
	MinBrushWidth     = 1
	MaxBrushWidth     = 20
)

// DefaultStrokeColor is the editor's initial pen color, #FF0000.
var DefaultStrokeColor = color.NRGBA{R: 0xff, A: 0xff}

// View describes where a buffer is shown on screen, in pointer coordinates.
type View struct {
	Left   float64
	Top    float64
	Width  float64
	Height float64
}

// Annotator owns a mutable copy of the upstream stage output. Strokes and
// text are rasterized immediately; the only undo is Clear.
type Annotator struct {
	entry   *raster.Buffer
	canvas  *raster.Buffer
	face    font.Face
	touched bool

	// frozen is set while the filter stage owns the annotation output.
	frozen atomic.Bool

	open  bool
	last  Point
	color color.NRGBA
	width float64
}

// NewAnnotator copies input; later changes to input do not reach the
// annotator and vice versa.
func NewAnnotator(input *raster.Buffer) *Annotator {
	return &Annotator{
		entry:  input.Clone(),
		canvas: input.Clone(),
	}
}

// BeginStroke opens a new path at p. An already open stroke is ended first.
// It does nothing while the annotator is frozen.
func (a *Annotator) BeginStroke(p Point, c color.NRGBA, width float64) {
	if a.frozen.Load() {
		return
	}
	if width <= 0 {
		width = DefaultBrushWidth
	}
	a.open = true
	a.last = p
	a.color = c
	a.width = width
}

// ExtendStroke draws a segment from the previous point to p. It reports
// false and does nothing when no stroke is open or the annotator is frozen.
func (a *Annotator) ExtendStroke(p Point) bool {
	if !a.open || a.frozen.Load() {
		return false
	}
	drawSegment(a.canvas.NRGBA(), a.last, p, a.width, a.color)
	a.last = p
	a.touched = true
	return true
}

func (a *Annotator) EndStroke() {
	a.open = false
}

func (a *Annotator) Drawing() bool {
	return a.open
}

// AddText stamps text at TextAnchor. It returns ErrFrozen once the filter
// stage has taken over.
func (a *Annotator) AddText(text string, c color.NRGBA) error {
	if a.frozen.Load() {
		return ErrFrozen
	}
	if strings.TrimSpace(text) == "" {
		return &ValidationError{Field: "text", Reason: "text is required"}
	}
	if a.face == nil {
		face, err := newLabelFace()
		if err != nil {
			return err
		}
		a.face = face
	}
	stampText(a.canvas.NRGBA(), a.face, text, TextAnchor, c)
	a.touched = true
	return nil
}

// Clear restores the buffer captured when the stage was entered.
func (a *Annotator) Clear() {
	if a.frozen.Load() {
		return
	}
	a.canvas = a.entry.Clone()
	a.open = false
	a.touched = false
}

// Frozen reports whether the filter stage currently owns the annotation
// output. Session.Annotator hands ownership back.
func (a *Annotator) Frozen() bool {
	return a.frozen.Load()
}

func (a *Annotator) Touched() bool {
	return a.touched
}

// Buffer returns a copy of the current annotation raster.
func (a *Annotator) Buffer() *raster.Buffer {
	return a.canvas.Clone()
}

// MapViewPoint converts pointer coordinates inside v to buffer pixels.
func (a *Annotator) MapViewPoint(v View, x, y float64) Point {
	p := Point{X: x - v.Left, Y: y - v.Top}
	if v.Width > 0 {
		p.X *= float64(a.canvas.Width()) / v.Width
	}
	if v.Height > 0 {
		p.Y *= float64(a.canvas.Height()) / v.Height
	}
	return p
}

// ParseHexColor parses #RGB, #RGBA, #RRGGBB or #RRGGBBAA. Colors without an
// alpha component are opaque.
func ParseHexColor(s string) (color.NRGBA, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(hex) == 3 || len(hex) == 4 {
		long := make([]byte, 0, 2*len(hex))
		for i := 0; i < len(hex); i++ {
			long = append(long, hex[i], hex[i])
		}
		hex = string(long)
	}
	if len(hex) == 6 {
		hex += "ff"
	}
	if len(hex) != 8 {
		return color.NRGBA{}, validationf("color", "invalid hex color %q", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.NRGBA{}, validationf("color", "invalid hex color %q", s)
	}
	return color.NRGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}, nil
}
