package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dunamismax/photoflow/internal/domain"
	"github.com/dunamismax/photoflow/internal/editor"
	"github.com/dunamismax/photoflow/internal/storage"
	"github.com/dunamismax/photoflow/internal/store"
)

func TestLocalProcessor_FileInEditFileOut(t *testing.T) {
	tmp := t.TempDir()
	inputPath := filepath.Join(tmp, "input.png")
	outputDir := filepath.Join(tmp, "out")

	srcBytes := buildTestPNG(t, 240, 120)
	if err := os.WriteFile(inputPath, srcBytes, 0o644); err != nil {
		t.Fatalf("write input image: %v", err)
	}

	processor, err := NewLocalProcessor(outputDir)
	if err != nil {
		t.Fatalf("new local processor: %v", err)
	}

	req := Request{
		JobID:      "job-local-1",
		SourcePath: inputPath,
		Recipe: domain.EditRecipe{
			Crop: &domain.CropStep{X: 20, Y: 10, Width: 160, Height: 90, Aspect: "16:9"},
			Strokes: []domain.StrokeStep{
				{Color: "#00ff00", Width: 5, Points: []domain.Point{{X: 10, Y: 45}, {X: 150, Y: 45}}},
			},
			Texts:   []domain.TextStep{{Text: "PhotoFlow", Color: "#ffffff"}},
			Filters: &domain.FilterStep{Brightness: 110, Contrast: 100, Saturation: 80},
			Output:  domain.OutputSettings{Format: "png"},
		},
	}

	result, err := processor.Process(context.Background(), req)
	if err != nil {
		t.Fatalf("process request: %v", err)
	}

	if result.SourceBytes != len(srcBytes) {
		t.Fatalf("expected source bytes %d, got %d", len(srcBytes), result.SourceBytes)
	}
	if result.SourceWidth != 240 || result.SourceHeight != 120 {
		t.Fatalf("expected source 240x120, got %dx%d", result.SourceWidth, result.SourceHeight)
	}
	if result.Output.Format != "png" {
		t.Fatalf("expected png output format, got %s", result.Output.Format)
	}
	if result.Output.Width != 160 || result.Output.Height != 90 {
		t.Fatalf("expected 160x90 output, got %dx%d", result.Output.Width, result.Output.Height)
	}
	if filepath.Base(result.Output.Path) != "edited.png" {
		t.Fatalf("unexpected output path %s", result.Output.Path)
	}
	verifyImageSize(t, result.Output.Path, 160, 90)
}

func TestLocalProcessor_DefaultsToJPEG(t *testing.T) {
	tmp := t.TempDir()
	inputPath := filepath.Join(tmp, "input.png")
	if err := os.WriteFile(inputPath, buildTestPNG(t, 64, 48), 0o644); err != nil {
		t.Fatalf("write input image: %v", err)
	}

	processor, err := NewLocalProcessor(tmp, WithDefaults("jpeg", 80))
	if err != nil {
		t.Fatalf("new local processor: %v", err)
	}

	result, err := processor.Process(context.Background(), Request{JobID: "job-jpeg", SourcePath: inputPath})
	if err != nil {
		t.Fatalf("process request: %v", err)
	}
	if result.Output.ContentType != "image/jpeg" {
		t.Fatalf("expected image/jpeg, got %s", result.Output.ContentType)
	}
	if filepath.Ext(result.Output.Path) != ".jpg" {
		t.Fatalf("expected .jpg output, got %s", result.Output.Path)
	}
	verifyImageSize(t, result.Output.Path, 64, 48)
}

func TestLocalProcessor_MissingSource(t *testing.T) {
	processor, err := NewLocalProcessor(t.TempDir())
	if err != nil {
		t.Fatalf("new local processor: %v", err)
	}

	_, err = processor.Process(context.Background(), Request{JobID: "job-missing"})
	if !errors.Is(err, ErrUnsupportedSourceType) {
		t.Fatalf("expected unsupported source error, got %v", err)
	}

	_, err = processor.Process(context.Background(), Request{JobID: "job-missing", SourcePath: filepath.Join(t.TempDir(), "nope.png")})
	var derr *editor.DecodeError
	if !errors.As(err, &derr) {
		t.Fatalf("expected decode error for missing file, got %v", err)
	}
}

func TestLocalProcessor_CropOutsideSource(t *testing.T) {
	tmp := t.TempDir()
	inputPath := filepath.Join(tmp, "input.png")
	if err := os.WriteFile(inputPath, buildTestPNG(t, 50, 50), 0o644); err != nil {
		t.Fatalf("write input image: %v", err)
	}
	processor, err := NewLocalProcessor(tmp)
	if err != nil {
		t.Fatalf("new local processor: %v", err)
	}

	_, err = processor.Process(context.Background(), Request{
		JobID:      "job-crop",
		SourcePath: inputPath,
		Recipe:     domain.EditRecipe{Crop: &domain.CropStep{X: 100, Y: 100, Width: 10, Height: 10}},
	})
	var verr *editor.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, statErr := os.Stat(filepath.Join(tmp, "job-crop")); !os.IsNotExist(statErr) {
		t.Fatal("expected nothing to be written for a failed recipe")
	}
}

func TestLocalProcessor_RejectsCropOutsideOrOffAspect(t *testing.T) {
	tmp := t.TempDir()
	inputPath := filepath.Join(tmp, "input.png")
	if err := os.WriteFile(inputPath, buildTestPNG(t, 100, 100), 0o644); err != nil {
		t.Fatalf("write input image: %v", err)
	}
	processor, err := NewLocalProcessor(tmp)
	if err != nil {
		t.Fatalf("new local processor: %v", err)
	}

	cases := map[string]domain.CropStep{
		"partial overlap":   {X: 90, Y: 90, Width: 50, Height: 50},
		"aspect mismatch":   {X: 0, Y: 0, Width: 50, Height: 20, Aspect: "1:1"},
		"original mismatch": {X: 0, Y: 0, Width: 60, Height: 30, Aspect: "original"},
	}
	for name, crop := range cases {
		t.Run(name, func(t *testing.T) {
			crop := crop
			_, err := processor.Process(context.Background(), Request{
				JobID:      "job-crop-reject",
				SourcePath: inputPath,
				Recipe:     domain.EditRecipe{Crop: &crop},
			})
			var verr *editor.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if !Permanent(err) {
				t.Fatalf("expected %v to be permanent", err)
			}
		})
	}
}

func TestLocalProcessor_CropOutputMatchesRegion(t *testing.T) {
	tmp := t.TempDir()
	inputPath := filepath.Join(tmp, "input.png")
	if err := os.WriteFile(inputPath, buildTestPNG(t, 100, 100), 0o644); err != nil {
		t.Fatalf("write input image: %v", err)
	}
	processor, err := NewLocalProcessor(tmp)
	if err != nil {
		t.Fatalf("new local processor: %v", err)
	}

	result, err := processor.Process(context.Background(), Request{
		JobID:      "job-exact",
		SourcePath: inputPath,
		Recipe: domain.EditRecipe{
			Crop:   &domain.CropStep{X: 10, Y: 20, Width: 80, Height: 60, Aspect: "4:3"},
			Output: domain.OutputSettings{Format: "png"},
		},
	})
	if err != nil {
		t.Fatalf("process request: %v", err)
	}
	verifyImageSize(t, result.Output.Path, 80, 60)
}

func TestApplyRecipe_SkipsStrokesWithoutPoints(t *testing.T) {
	s := editor.NewSession(editor.Options{})
	defer s.Close()
	if err := s.Load(context.Background(), editor.Source{Data: buildTestPNG(t, 20, 20)}); err != nil {
		t.Fatalf("load: %v", err)
	}

	err := ApplyRecipe(s, domain.EditRecipe{Strokes: []domain.StrokeStep{{Color: "#ff0000"}}})
	if err != nil {
		t.Fatalf("apply recipe: %v", err)
	}
}

func TestRecipeColorsAgreeWithParser(t *testing.T) {
	colors := []string{"#f00", "#f008", "#ff0000", "#ff000080", "#FFAA00", "#12345", "#ggg", "ff0000", "#1234567"}
	for _, c := range colors {
		recipe := domain.EditRecipe{
			Strokes: []domain.StrokeStep{{Color: c, Points: []domain.Point{{X: 1, Y: 1}}}},
			Texts:   []domain.TextStep{{Text: "hi", Color: c}},
		}
		validErr := recipe.Validate()
		_, parseErr := editor.ParseHexColor(c)
		if validErr == nil && parseErr != nil {
			t.Fatalf("%q passes validation but the editor rejects it: %v", c, parseErr)
		}
	}
}

func TestObjectStoreProcessor_SavesEditedPhoto(t *testing.T) {
	ctx := context.Background()
	photos := store.NewMemoryStore()
	blobs := storage.NewMemoryStore("http://blobs.local")
	now := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

	if _, err := blobs.Put(ctx, "alice/1-source.png", buildTestPNG(t, 100, 80), "image/png"); err != nil {
		t.Fatalf("seed blob: %v", err)
	}
	if err := photos.CreatePhoto(ctx, domain.Photo{ID: "src", UserID: "u1", BlobName: "alice/1-source.png"}); err != nil {
		t.Fatalf("seed photo: %v", err)
	}

	processor, err := NewProcessor(
		ObjectStoreFetcher{Photos: photos, Blobs: blobs},
		ObjectStoreEmitter{Photos: photos, Blobs: blobs, Now: func() time.Time { return now }},
	)
	if err != nil {
		t.Fatalf("new processor: %v", err)
	}

	result, err := processor.Process(ctx, Request{
		JobID:    "job-1",
		PhotoID:  "src",
		UserID:   "u1",
		Username: "Alice",
		Recipe: domain.EditRecipe{
			Crop:   &domain.CropStep{X: 0, Y: 0, Width: 50, Height: 40},
			Output: domain.OutputSettings{Format: "png"},
		},
	})
	if err != nil {
		t.Fatalf("process: %v", err)
	}

	edited, ok, err := photos.GetPhoto(ctx, result.Output.PhotoID)
	if err != nil || !ok {
		t.Fatalf("expected edited photo to be stored, ok=%v err=%v", ok, err)
	}
	if edited.EditedFrom != "src" || edited.UserID != "u1" {
		t.Fatalf("unexpected edited photo %+v", edited)
	}
	if edited.Width != 50 || edited.Height != 40 || edited.ContentType != "image/png" {
		t.Fatalf("unexpected edited photo dims/type %+v", edited)
	}
	if filepath.Dir(edited.BlobName) != "alice" || filepath.Ext(edited.BlobName) != ".png" {
		t.Fatalf("unexpected blob name %s", edited.BlobName)
	}

	data, err := blobs.Get(ctx, edited.BlobName)
	if err != nil {
		t.Fatalf("read edited blob: %v", err)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode edited blob: %v", err)
	}
	if img.Bounds().Dx() != 50 || img.Bounds().Dy() != 40 {
		t.Fatalf("expected 50x40 blob, got %v", img.Bounds())
	}
}

func TestObjectStoreFetcher_RejectsForeignPhoto(t *testing.T) {
	ctx := context.Background()
	photos := store.NewMemoryStore()
	blobs := storage.NewMemoryStore("")
	_ = photos.CreatePhoto(ctx, domain.Photo{ID: "p1", UserID: "owner", BlobName: "owner/1.png"})

	_, err := ObjectStoreFetcher{Photos: photos, Blobs: blobs}.Fetch(ctx, Request{PhotoID: "p1", UserID: "intruder"})
	if !errors.Is(err, ErrPhotoNotFound) {
		t.Fatalf("expected ErrPhotoNotFound, got %v", err)
	}
}

type failingPhotoStore struct {
	store.PhotoStore
}

func (failingPhotoStore) CreatePhoto(context.Context, domain.Photo) error {
	return errors.New("database unavailable")
}

func TestObjectStoreEmitter_RemovesBlobWhenMetadataFails(t *testing.T) {
	blobs := storage.NewMemoryStore("")
	emitter := ObjectStoreEmitter{Photos: failingPhotoStore{}, Blobs: blobs}

	_, err := emitter.Emit(context.Background(), Request{JobID: "j", Username: "bob"}, editor.Blob{
		Data:        []byte{1, 2, 3},
		ContentType: "image/png",
		Format:      "png",
		Width:       1,
		Height:      1,
	})
	if err == nil {
		t.Fatal("expected emit to fail")
	}
	if blobs.Len() != 0 {
		t.Fatalf("expected orphaned blob to be removed, %d left", blobs.Len())
	}
}

func buildTestPNG(t testing.TB, w, h int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8((x * 255) / w),
				G: uint8((y * 255) / h),
				B: 140,
				A: 255,
			})
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode source png: %v", err)
	}
	return buf.Bytes()
}

func verifyImageSize(t *testing.T, path string, wantW, wantH int) {
	t.Helper()

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open image %s: %v", path, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		t.Fatalf("decode image %s: %v", path, err)
	}

	if got := img.Bounds(); got.Dx() != wantW || got.Dy() != wantH {
		t.Fatalf("expected %dx%d, got %dx%d", wantW, wantH, got.Dx(), got.Dy())
	}
}
