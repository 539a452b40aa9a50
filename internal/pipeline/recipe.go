package pipeline

import (
	"fmt"
	"image/color"
	"math"

	"github.com/dunamismax/photoflow/internal/domain"
	"github.com/dunamismax/photoflow/internal/editor"
)

// ApplyRecipe drives a loaded session through the recipe's crop, annotate and
// filter stages in that order. Stages the recipe leaves out are skipped.
func ApplyRecipe(s *editor.Session, r domain.EditRecipe) error {
	if r.Crop != nil {
		if err := applyCrop(s, *r.Crop); err != nil {
			return err
		}
	}
	if len(r.Strokes) > 0 || len(r.Texts) > 0 {
		if err := applyAnnotations(s, r.Strokes, r.Texts); err != nil {
			return err
		}
	}
	if r.Filters != nil {
		s.SetFilters(editor.FilterParameters{
			Brightness: r.Filters.Brightness,
			Contrast:   r.Filters.Contrast,
			Saturation: r.Filters.Saturation,
		})
		if _, err := s.ApplyFilters(); err != nil {
			return fmt.Errorf("apply filters: %w", err)
		}
	}
	return nil
}

// applyCrop replays a committed crop. The region must lie inside the source
// and match its aspect preset; Select alone would clip or refit it.
func applyCrop(s *editor.Session, step domain.CropStep) error {
	cropper, err := s.Cropper()
	if err != nil {
		return err
	}

	aspect, err := editor.ParseAspectPreset(step.Aspect)
	if err != nil {
		return err
	}
	if err := cropper.SetAspect(aspect); err != nil {
		return err
	}
	if step.Zoom > 0 {
		cropper.SetZoom(step.Zoom)
	}

	region := editor.Region{X: step.X, Y: step.Y, Width: step.Width, Height: step.Height}
	srcW, srcH := cropper.SourceSize()
	if err := region.Validate(srcW, srcH); err != nil {
		return err
	}
	if ratio, ok := cropper.Ratio(); ok && !matchesRatio(region, ratio) {
		return &editor.ValidationError{
			Field:  "crop",
			Reason: fmt.Sprintf("region %dx%d does not match aspect %s", region.Width, region.Height, aspect),
		}
	}

	if _, err := cropper.Select(region); err != nil {
		return err
	}
	if _, err := s.ApplyCrop(); err != nil {
		return fmt.Errorf("apply crop: %w", err)
	}
	return nil
}

// matchesRatio allows one pixel of rounding on either side.
func matchesRatio(r editor.Region, ratio float64) bool {
	return math.Abs(float64(r.Width)-float64(r.Height)*ratio) <= 1 ||
		math.Abs(float64(r.Height)-float64(r.Width)/ratio) <= 1
}

func applyAnnotations(s *editor.Session, strokes []domain.StrokeStep, texts []domain.TextStep) error {
	ann, err := s.Annotator()
	if err != nil {
		return err
	}
	for i, stroke := range strokes {
		if len(stroke.Points) == 0 {
			continue
		}
		c, err := colorOr(stroke.Color)
		if err != nil {
			return fmt.Errorf("strokes[%d]: %w", i, err)
		}
		width := stroke.Width
		if width == 0 {
			width = editor.DefaultBrushWidth
		}
		ann.BeginStroke(point(stroke.Points[0]), c, width)
		for _, p := range stroke.Points[1:] {
			ann.ExtendStroke(point(p))
		}
		ann.EndStroke()
	}

	for i, text := range texts {
		c, err := colorOr(text.Color)
		if err != nil {
			return fmt.Errorf("texts[%d]: %w", i, err)
		}
		if err := ann.AddText(text.Text, c); err != nil {
			return fmt.Errorf("texts[%d]: %w", i, err)
		}
	}
	return nil
}

func colorOr(hex string) (color.NRGBA, error) {
	if hex == "" {
		return editor.DefaultStrokeColor, nil
	}
	return editor.ParseHexColor(hex)
}

func point(p domain.Point) editor.Point {
	return editor.Point{X: p.X, Y: p.Y}
}
