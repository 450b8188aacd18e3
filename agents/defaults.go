package agents

import (
	"mediaPipeline/converter"
	"mediaPipeline/pipeline"
	"mediaPipeline/provider"
)

type Deps struct {
	Text        provider.TextGenerator
	Media       provider.MediaSubmitter
	Assets      AssetStore
	Converter   *converter.Converter
	MediaDir    string
	CallbackURL string
}

// NewSet wires the production agents.
func NewSet(d Deps) *Set {
	submit := func(kind pipeline.AssetKind, prompts PromptBuilder) *SubmitAgent {
		return &SubmitAgent{
			Kind:        kind,
			Media:       d.Media,
			Assets:      d.Assets,
			Prompts:     prompts,
			CallbackURL: d.CallbackURL,
		}
	}
	return &Set{
		Script:     &ScriptAgent{Text: d.Text},
		Lyrics:     &LyricsAgent{Text: d.Text},
		Images:     submit(pipeline.AssetImage, ImagePrompts),
		Thumbnail:  &ThumbnailAgent{Converter: d.Converter, MediaDir: d.MediaDir},
		VideoClips: submit(pipeline.AssetVideo, VideoClipPrompts),
		Music:      submit(pipeline.AssetMusic, MusicPrompts),
		CoverArt:   submit(pipeline.AssetImage, CoverArtPrompts),
		Assemble:   &AssembleAgent{MediaDir: d.MediaDir},
	}
}
