package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"mediaPipeline/pipeline"
)

type TimelineEntry struct {
	Index       int    `json:"index"`
	Description string `json:"description"`
	Duration    int    `json:"duration"`
	ClipToken   string `json:"clip_token"`
}

type Manifest struct {
	PipelineID   string          `json:"pipeline_id"`
	Type         pipeline.Type   `json:"pipeline_type"`
	Title        string          `json:"title"`
	Duration     int             `json:"duration"`
	Timeline     []TimelineEntry `json:"timeline"`
	AudioToken   string          `json:"audio_token,omitempty"`
	CoverToken   string          `json:"cover_token,omitempty"`
	Thumbnail    string          `json:"thumbnail,omitempty"`
	ManifestPath string          `json:"manifest_path,omitempty"`
}

// AssembleAgent lays the generated pieces out on a timeline. The encoder that
// renders the final file consumes the manifest.
type AssembleAgent struct {
	MediaDir string
}

func (a *AssembleAgent) Execute(ctx context.Context, in *Input) (pipeline.Result, error) {
	m := Manifest{PipelineID: in.PipelineID, Type: in.Type}
	clips := tokensOf(in, pipeline.StepVideoClips)

	if _, ok := in.Prior[pipeline.StepScript]; ok {
		var script ScriptResult
		if err := in.Decode(pipeline.StepScript, &script); err != nil {
			return nil, &ExecutionError{Step: in.Step, Cause: err}
		}
		m.Title = script.Title
		for i, s := range script.Scenes {
			m.Timeline = append(m.Timeline, TimelineEntry{Index: i, Description: s.Description, Duration: s.Duration, ClipToken: clips[i]})
		}
		var thumb ThumbnailResult
		if err := in.Decode(pipeline.StepThumbnail, &thumb); err == nil {
			m.Thumbnail = thumb.Path
		}
	} else {
		var lyrics LyricsResult
		if err := in.Decode(pipeline.StepLyrics, &lyrics); err != nil {
			return nil, &ExecutionError{Step: in.Step, Cause: err}
		}
		m.Title = lyrics.Title
		each := 0
		if in.Config.Duration > 0 && len(lyrics.Sections) > 0 {
			each = in.Config.Duration / len(lyrics.Sections)
		}
		for i, section := range lyrics.Sections {
			m.Timeline = append(m.Timeline, TimelineEntry{Index: i, Description: section, Duration: each, ClipToken: clips[i]})
		}
		m.AudioToken = tokensOf(in, pipeline.StepMusic)[0]
		m.CoverToken = tokensOf(in, pipeline.StepCoverArt)[0]
	}

	if len(m.Timeline) == 0 {
		return nil, fail(in.Step, "timeline is empty")
	}
	for _, e := range m.Timeline {
		m.Duration += e.Duration
	}
	if m.Duration == 0 {
		m.Duration = in.Config.Duration
	}

	if a.MediaDir != "" {
		path := filepath.Join(a.MediaDir, in.PipelineID, "manifest.json")
		if err := writeManifest(path, m); err != nil {
			return nil, &ExecutionError{Step: in.Step, Cause: err}
		}
		m.ManifestPath = path
	}

	return toResult(m)
}

func writeManifest(path string, m Manifest) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating manifest dir: %w", err)
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling manifest: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}
