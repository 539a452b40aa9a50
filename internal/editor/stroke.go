package editor

import (
	"image"
	"image/color"
	"math"

	"golang.org/x/image/vector"
)

// capSteps is the number of segments approximating each half-circle cap.
const capSteps = 16

// Point is a position in buffer pixel coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// drawSegment composites a round-capped line from a to b onto dst. Drawing
// consecutive segments with shared endpoints yields round joins.
func drawSegment(dst *image.NRGBA, a, b Point, width float64, c color.NRGBA) {
	r := width / 2
	if r < 0.5 {
		r = 0.5
	}

	bbox := image.Rect(
		int(math.Floor(math.Min(a.X, b.X)-r))-1,
		int(math.Floor(math.Min(a.Y, b.Y)-r))-1,
		int(math.Ceil(math.Max(a.X, b.X)+r))+1,
		int(math.Ceil(math.Max(a.Y, b.Y)+r))+1,
	).Intersect(dst.Bounds())
	if bbox.Empty() {
		return
	}

	z := vector.NewRasterizer(bbox.Dx(), bbox.Dy())
	ox, oy := float64(bbox.Min.X), float64(bbox.Min.Y)
	angle := math.Atan2(b.Y-a.Y, b.X-a.X)

	started := false
	arc := func(cx, cy, from float64) {
		for i := 0; i <= capSteps; i++ {
			t := from + math.Pi*float64(i)/capSteps
			px := float32(cx + r*math.Cos(t) - ox)
			py := float32(cy + r*math.Sin(t) - oy)
			if !started {
				z.MoveTo(px, py)
				started = true
				continue
			}
			z.LineTo(px, py)
		}
	}
	// The two half circles form one convex capsule; when a == b it is a dot.
	arc(b.X, b.Y, angle-math.Pi/2)
	arc(a.X, a.Y, angle+math.Pi/2)
	z.ClosePath()

	z.Draw(dst, bbox, image.NewUniform(c), image.Point{})
}
