package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dunamismax/photoflow/internal/config"
	"github.com/dunamismax/photoflow/internal/domain"
	"github.com/dunamismax/photoflow/internal/logger"
	"github.com/dunamismax/photoflow/internal/pipeline"
	"github.com/dunamismax/photoflow/internal/raster"
	"go.uber.org/zap"
)

func main() {
	var (
		in         = flag.String("in", "", "source image path")
		out        = flag.String("out", "", "output path (default: <in>-edited.<ext>)")
		recipePath = flag.String("recipe", "", "edit recipe JSON file (default: re-encode only)")
		format     = flag.String("format", "", "output format: jpeg, png, gif or webp (overrides the recipe)")
		quality    = flag.Int("quality", 0, "output quality 1..100 (overrides the recipe)")
		logLevel   = flag.String("log-level", "info", "log level")
		timeout    = flag.Duration("timeout", time.Minute, "overall timeout")
	)
	flag.Parse()

	log, err := logger.New(
		config.LoggingConfig{Level: *logLevel, Format: "console"},
		config.AppConfig{Name: "photoflow", Environment: "development"},
		"photoedit",
	)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(log, *in, *out, *recipePath, *format, *quality, *timeout); err != nil {
		log.Error("edit failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(log *zap.Logger, in, out, recipePath, format string, quality int, timeout time.Duration) error {
	if strings.TrimSpace(in) == "" {
		return errors.New("-in is required")
	}

	recipe, err := loadRecipe(recipePath)
	if err != nil {
		return err
	}
	if format != "" {
		recipe.Output.Format = format
	}
	if quality != 0 {
		recipe.Output.Quality = quality
	}
	if out == "" {
		out = defaultOutputPath(in, recipe.Output.Format)
	}

	if err := pipeline.Startup(); err != nil {
		return err
	}
	defer pipeline.Shutdown()

	processor, err := pipeline.NewProcessor(
		pipeline.LocalFileFetcher{},
		pipeline.LocalFileEmitter{Path: out},
		pipeline.WithLogger(log),
		pipeline.WithDefaults(raster.FormatJPEG, raster.DefaultQuality),
	)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	started := time.Now()
	result, err := processor.Process(ctx, pipeline.Request{
		JobID:      "cli",
		SourcePath: in,
		Recipe:     recipe,
	})
	if err != nil {
		return err
	}

	log.Info("edit written",
		zap.String("path", result.Output.Path),
		zap.String("format", result.Output.Format),
		zap.Int("width", result.Output.Width),
		zap.Int("height", result.Output.Height),
		zap.Int("bytes", result.Output.Bytes),
		zap.Duration("took", time.Since(started)),
	)
	return nil
}

func loadRecipe(path string) (domain.EditRecipe, error) {
	var recipe domain.EditRecipe
	if path == "" {
		return recipe, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return recipe, fmt.Errorf("read recipe: %w", err)
	}
	if err := json.Unmarshal(data, &recipe); err != nil {
		return recipe, fmt.Errorf("parse recipe %s: %w", path, err)
	}
	return recipe, nil
}

// defaultOutputPath places the result next to the source. The extension
// follows the requested format, or the JPEG default.
func defaultOutputPath(in, format string) string {
	if format == "" {
		format = raster.FormatJPEG
	}
	ext := filepath.Ext(in)
	return strings.TrimSuffix(in, ext) + "-edited." + raster.Extension(format)
}
