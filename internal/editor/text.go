package editor

import (
	"fmt"
	"image"
	"image/color"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/font/sfnt"
	"golang.org/x/image/math/fixed"
)

const TextSize = 40

// TextAnchor is the fixed top-left position of stamped labels.
var TextAnchor = image.Pt(20, 20)

var (
	fontOnce sync.Once
	labelFnt *sfnt.Font
	fontErr  error
)

// newLabelFace returns a fresh face per caller; opentype faces are not safe
// for concurrent use but the parsed font is.
func newLabelFace() (font.Face, error) {
	fontOnce.Do(func() {
		labelFnt, fontErr = opentype.Parse(goregular.TTF)
	})
	if fontErr != nil {
		return nil, fmt.Errorf("parse label font: %w", fontErr)
	}
	face, err := opentype.NewFace(labelFnt, &opentype.FaceOptions{
		Size:    TextSize,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("build label face: %w", err)
	}
	return face, nil
}

func stampText(dst *image.NRGBA, face font.Face, text string, anchor image.Point, c color.NRGBA) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(anchor.X, anchor.Y+face.Metrics().Ascent.Ceil()),
	}
	d.DrawString(text)
}
