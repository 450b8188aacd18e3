// Package converter renders still images (thumbnails, cover art fallbacks) for pipelines.
package converter

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"
)

type Options struct {
	Width   int
	Height  int
	Crop    bool
	Format  string // jpg, jpeg or png; empty keeps the output path's extension
	Quality int
}

type Converter struct {
	logger *zap.Logger
}

func NewConverter(logger *zap.Logger) *Converter {
	return &Converter{logger: logger}
}

// Thumbnail resizes inputPath to the requested frame and writes it to outputPath.
// A zero width or height keeps the aspect ratio for that side.
func (c *Converter) Thumbnail(inputPath, outputPath string, opts Options) error {
	c.logger.Info("Rendering thumbnail",
		zap.String("input", inputPath),
		zap.String("output", outputPath),
		zap.Int("width", opts.Width),
		zap.Int("height", opts.Height),
		zap.Bool("crop", opts.Crop),
	)

	src, err := imaging.Open(inputPath)
	if err != nil {
		c.logger.Error("Failed to open image",
			zap.String("path", inputPath),
			zap.Error(err),
		)
		return fmt.Errorf("failed to open image: %w", err)
	}

	var processed *image.NRGBA
	switch {
	case opts.Width == 0 && opts.Height == 0:
		processed = imaging.Clone(src)
	case opts.Crop && opts.Width > 0 && opts.Height > 0:
		processed = imaging.Fill(src, opts.Width, opts.Height, imaging.Center, imaging.Lanczos)
	default:
		processed = imaging.Resize(src, opts.Width, opts.Height, imaging.Lanczos)
	}

	return c.save(processed, outputPath, opts)
}

// Placeholder writes a solid frame, used when no source image is available.
func (c *Converter) Placeholder(outputPath string, opts Options, fill color.Color) error {
	if opts.Width <= 0 || opts.Height <= 0 {
		return fmt.Errorf("placeholder needs positive dimensions, got %dx%d", opts.Width, opts.Height)
	}
	c.logger.Info("Rendering placeholder",
		zap.String("output", outputPath),
		zap.Int("width", opts.Width),
		zap.Int("height", opts.Height),
	)
	return c.save(imaging.New(opts.Width, opts.Height, fill), outputPath, opts)
}

func (c *Converter) save(img *image.NRGBA, outputPath string, opts Options) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}

	quality := opts.Quality
	if quality <= 0 {
		quality = 85
	}

	var err error
	switch opts.Format {
	case "jpg", "jpeg", "png", "":
		// imaging picks the encoder from the file extension.
		err = imaging.Save(img, outputPath, imaging.JPEGQuality(quality))
	default:
		err = fmt.Errorf("unsupported format: %s", opts.Format)
		c.logger.Error("Unsupported format", zap.Error(err))
		return err
	}
	if err != nil {
		c.logger.Error("Failed to save image",
			zap.String("path", outputPath),
			zap.Error(err),
		)
		return fmt.Errorf("failed to save image: %w", err)
	}

	c.logger.Info("Image written", zap.String("output", outputPath))
	return nil
}
