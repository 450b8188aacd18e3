package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"mediaPipeline/pipeline"
	"mediaPipeline/provider"
)

const (
	scriptSystem = `You write short-form video scripts. Answer with JSON only: {"title": string, "scenes": [{"description": string, "duration": seconds}]}.`
	lyricsSystem = `You write song lyrics for short music videos. Answer with JSON only: {"title": string, "lyrics": string, "sections": [string]}.`
)

type Scene struct {
	Description string `json:"description"`
	Duration    int    `json:"duration"`
}

type ScriptResult struct {
	Title  string  `json:"title"`
	Scenes []Scene `json:"scenes"`
}

type LyricsResult struct {
	Title    string   `json:"title"`
	Lyrics   string   `json:"lyrics"`
	Sections []string `json:"sections"`
}

// ScriptAgent turns the theme and brief into a scene plan.
type ScriptAgent struct {
	Text provider.TextGenerator
}

func (a *ScriptAgent) Execute(ctx context.Context, in *Input) (pipeline.Result, error) {
	prompt := describe(in, "theme", "brief", "duration", "style", "language")

	raw, err := a.Text.Generate(ctx, scriptSystem, prompt)
	if err != nil {
		return nil, &ExecutionError{Step: in.Step, Cause: err}
	}

	var script ScriptResult
	if err := json.Unmarshal([]byte(extractJSON(raw)), &script); err != nil {
		return nil, fail(in.Step, "script is not valid JSON: %v", err)
	}
	if len(script.Scenes) == 0 {
		return nil, fail(in.Step, "script has no scenes")
	}
	if script.Title == "" {
		script.Title = in.Config.Theme
	}
	spreadDurations(script.Scenes, in.Config.Duration)

	return toResult(script)
}

// LyricsAgent writes the song the music and clips are generated from.
type LyricsAgent struct {
	Text provider.TextGenerator
}

func (a *LyricsAgent) Execute(ctx context.Context, in *Input) (pipeline.Result, error) {
	prompt := describe(in, "theme", "brief", "genre", "mood", "language")

	raw, err := a.Text.Generate(ctx, lyricsSystem, prompt)
	if err != nil {
		return nil, &ExecutionError{Step: in.Step, Cause: err}
	}

	var lyrics LyricsResult
	if err := json.Unmarshal([]byte(extractJSON(raw)), &lyrics); err != nil {
		return nil, fail(in.Step, "lyrics are not valid JSON: %v", err)
	}
	if strings.TrimSpace(lyrics.Lyrics) == "" {
		return nil, fail(in.Step, "lyrics are empty")
	}
	if len(lyrics.Sections) == 0 {
		lyrics.Sections = []string{"verse"}
	}
	if lyrics.Title == "" {
		lyrics.Title = in.Config.Theme
	}

	return toResult(lyrics)
}

func describe(in *Input, keys ...string) string {
	m := in.Map()
	var sb strings.Builder
	for _, k := range keys {
		v, ok := m[k]
		if !ok || v == "" {
			continue
		}
		fmt.Fprintf(&sb, "%s: %v\n", k, v)
	}
	return sb.String()
}

// extractJSON trims prose or code fences around the first JSON object.
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return s
	}
	return s[start : end+1]
}

// spreadDurations fills missing scene durations so they add up to total.
func spreadDurations(scenes []Scene, total int) {
	if total <= 0 {
		return
	}
	missing, used := 0, 0
	for _, s := range scenes {
		if s.Duration <= 0 {
			missing++
		} else {
			used += s.Duration
		}
	}
	if missing == 0 {
		return
	}
	each := (total - used) / missing
	if each < 1 {
		each = 1
	}
	for i := range scenes {
		if scenes[i].Duration <= 0 {
			scenes[i].Duration = each
		}
	}
}
