package agents

import (
	"context"
	"hash/fnv"
	"image/color"
	"os"
	"path/filepath"

	"mediaPipeline/converter"
	"mediaPipeline/pipeline"
)

const (
	thumbnailWidth  = 1280
	thumbnailHeight = 720
)

type ThumbnailResult struct {
	Path   string `json:"path"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Source string `json:"source"`
	Title  string `json:"title,omitempty"`
}

// ThumbnailAgent renders the cover frame locally. It crops the configured cover
// image when there is one and otherwise draws a flat frame tinted by the theme.
type ThumbnailAgent struct {
	Converter *converter.Converter
	MediaDir  string
}

func (a *ThumbnailAgent) Execute(ctx context.Context, in *Input) (pipeline.Result, error) {
	out := filepath.Join(a.MediaDir, in.PipelineID, "thumbnail.jpg")
	opts := converter.Options{Width: thumbnailWidth, Height: thumbnailHeight, Crop: true, Format: "jpg"}

	res := ThumbnailResult{Path: out, Width: thumbnailWidth, Height: thumbnailHeight}

	var script ScriptResult
	if err := in.Decode(pipeline.StepScript, &script); err == nil {
		res.Title = script.Title
	}

	if src := in.String("cover_image"); src != "" {
		if _, err := os.Stat(src); err != nil {
			return nil, fail(in.Step, "cover image %s: %v", src, err)
		}
		if _, err := converter.DetectImageFile(src); err != nil {
			return nil, fail(in.Step, "cover image %s: %v", src, err)
		}
		if err := a.Converter.Thumbnail(src, out, opts); err != nil {
			return nil, &ExecutionError{Step: in.Step, Cause: err}
		}
		res.Source = "cover_image"
		return toResult(res)
	}

	if err := a.Converter.Placeholder(out, opts, themeColor(in.Config.Theme)); err != nil {
		return nil, &ExecutionError{Step: in.Step, Cause: err}
	}
	res.Source = "placeholder"
	return toResult(res)
}

func themeColor(theme string) color.Color {
	h := fnv.New32a()
	h.Write([]byte(theme))
	sum := h.Sum32()
	return color.NRGBA{R: uint8(sum >> 16), G: uint8(sum >> 8), B: uint8(sum), A: 255}
}
