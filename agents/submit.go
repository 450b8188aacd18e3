package agents

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"mediaPipeline/pipeline"
	"mediaPipeline/provider"
	"mediaPipeline/repository"
)

const defaultConcurrency = 4

// AssetStore is the part of the repository a submitting agent writes to.
type AssetStore interface {
	ListAssets(ctx context.Context, pipelineID string) ([]*pipeline.Asset, error)
	CreateAsset(ctx context.Context, a *pipeline.Asset) error
	UpdateAssetByToken(ctx context.Context, token string, fn repository.AssetMutateFunc) (*pipeline.Asset, error)
}

type MediaPrompt struct {
	Prompt         string
	Duration       int
	ReferenceToken string
}

type PromptBuilder func(in *Input) ([]MediaPrompt, error)

type Submission struct {
	Token      string `json:"token"`
	Index      int    `json:"index"`
	ExternalID string `json:"external_id"`
}

type SubmitResult struct {
	Kind  pipeline.AssetKind `json:"kind"`
	Tasks []Submission       `json:"tasks"`
}

// SubmitAgent fans out one media generation per prompt and returns without
// waiting for the media itself. Assets of an earlier attempt at the same step
// that are still pending are marked failed first.
type SubmitAgent struct {
	Kind        pipeline.AssetKind
	Media       provider.MediaSubmitter
	Assets      AssetStore
	Prompts     PromptBuilder
	CallbackURL string
	Concurrency int
}

func (a *SubmitAgent) Execute(ctx context.Context, in *Input) (pipeline.Result, error) {
	prompts, err := a.Prompts(in)
	if err != nil {
		return nil, &ExecutionError{Step: in.Step, Cause: err}
	}
	if len(prompts) == 0 {
		return nil, fail(in.Step, "nothing to generate")
	}

	if err := a.supersede(ctx, in); err != nil {
		return nil, &ExecutionError{Step: in.Step, Cause: err}
	}

	limit := a.Concurrency
	if limit <= 0 {
		limit = defaultConcurrency
	}

	tasks := make([]Submission, len(prompts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, p := range prompts {
		g.Go(func() error {
			sub, err := a.submit(gctx, in, i, p)
			if err != nil {
				return err
			}
			tasks[i] = sub
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, &ExecutionError{Step: in.Step, Cause: err}
	}

	return toResult(SubmitResult{Kind: a.Kind, Tasks: tasks})
}

func (a *SubmitAgent) submit(ctx context.Context, in *Input, index int, p MediaPrompt) (Submission, error) {
	token := uuid.New().String()
	asset := &pipeline.Asset{
		ID:               uuid.New().String(),
		PipelineID:       in.PipelineID,
		StepID:           in.Step,
		Kind:             a.Kind,
		Index:            index,
		CorrelationToken: token,
		Status:           pipeline.AssetPending,
		CreatedAt:        time.Now(),
	}
	if err := a.Assets.CreateAsset(ctx, asset); err != nil {
		return Submission{}, fmt.Errorf("create %s asset %d: %w", a.Kind, index, err)
	}

	externalID, err := a.Media.Submit(ctx, provider.MediaRequest{
		Kind:             a.Kind,
		Prompt:           p.Prompt,
		CorrelationToken: token,
		CallbackURL:      a.CallbackURL,
		DurationSeconds:  p.Duration,
		AspectRatio:      in.String("aspect_ratio"),
		ReferenceToken:   p.ReferenceToken,
	})
	if err != nil {
		submitErr := fmt.Errorf("submit %s %d: %w", a.Kind, index, err)
		_, markErr := a.Assets.UpdateAssetByToken(context.WithoutCancel(ctx), token, markAssetFailed(submitErr))
		return Submission{}, errors.Join(submitErr, markErr)
	}

	_, err = a.Assets.UpdateAssetByToken(ctx, token, func(asset *pipeline.Asset, _ *pipeline.Pipeline) error {
		if asset.ExternalID != "" {
			return pipeline.ErrNoChange
		}
		asset.ExternalID = externalID
		return nil
	})
	if err != nil {
		return Submission{}, fmt.Errorf("record external id for %s %d: %w", a.Kind, index, err)
	}

	return Submission{Token: token, Index: index, ExternalID: externalID}, nil
}

var errSuperseded = errors.New("superseded by a new attempt")

func (a *SubmitAgent) supersede(ctx context.Context, in *Input) error {
	existing, err := a.Assets.ListAssets(ctx, in.PipelineID)
	if err != nil {
		return fmt.Errorf("list %s assets: %w", a.Kind, err)
	}
	for _, asset := range existing {
		if asset.StepID != in.Step || asset.Status != pipeline.AssetPending {
			continue
		}
		if _, err := a.Assets.UpdateAssetByToken(ctx, asset.CorrelationToken, markAssetFailed(errSuperseded)); err != nil {
			return fmt.Errorf("supersede %s asset %d: %w", a.Kind, asset.Index, err)
		}
	}
	return nil
}

func markAssetFailed(cause error) repository.AssetMutateFunc {
	return func(a *pipeline.Asset, _ *pipeline.Pipeline) error {
		if a.Status != pipeline.AssetPending {
			return pipeline.ErrNoChange
		}
		now := time.Now()
		a.Status = pipeline.AssetFailed
		a.Error = cause.Error()
		a.CompletedAt = &now
		return nil
	}
}

// ImagePrompts produces one still per script scene.
func ImagePrompts(in *Input) ([]MediaPrompt, error) {
	var script ScriptResult
	if err := in.Decode(pipeline.StepScript, &script); err != nil {
		return nil, err
	}
	style := in.String("style")
	out := make([]MediaPrompt, len(script.Scenes))
	for i, s := range script.Scenes {
		out[i] = MediaPrompt{Prompt: withStyle(s.Description, style)}
	}
	return out, nil
}

// VideoClipPrompts animates each scene, or each song section for music videos.
// Clips reference the matching still when one was generated.
func VideoClipPrompts(in *Input) ([]MediaPrompt, error) {
	if _, ok := in.Prior[pipeline.StepScript]; ok {
		var script ScriptResult
		if err := in.Decode(pipeline.StepScript, &script); err != nil {
			return nil, err
		}
		refs := tokensOf(in, pipeline.StepImages)
		out := make([]MediaPrompt, len(script.Scenes))
		for i, s := range script.Scenes {
			out[i] = MediaPrompt{Prompt: s.Description, Duration: s.Duration, ReferenceToken: refs[i]}
		}
		return out, nil
	}

	var lyrics LyricsResult
	if err := in.Decode(pipeline.StepLyrics, &lyrics); err != nil {
		return nil, err
	}
	cover := tokensOf(in, pipeline.StepCoverArt)[0]
	each := 0
	if in.Config.Duration > 0 && len(lyrics.Sections) > 0 {
		each = in.Config.Duration / len(lyrics.Sections)
	}
	out := make([]MediaPrompt, len(lyrics.Sections))
	for i, section := range lyrics.Sections {
		out[i] = MediaPrompt{
			Prompt:         fmt.Sprintf("%s, %s of %q", in.Config.Theme, section, lyrics.Title),
			Duration:       each,
			ReferenceToken: cover,
		}
	}
	return out, nil
}

func MusicPrompts(in *Input) ([]MediaPrompt, error) {
	var lyrics LyricsResult
	if err := in.Decode(pipeline.StepLyrics, &lyrics); err != nil {
		return nil, err
	}
	prompt := fmt.Sprintf("%s\n\ngenre: %s\nmood: %s", lyrics.Lyrics, in.String("genre"), in.String("mood"))
	return []MediaPrompt{{Prompt: prompt, Duration: in.Config.Duration}}, nil
}

func CoverArtPrompts(in *Input) ([]MediaPrompt, error) {
	var lyrics LyricsResult
	if err := in.Decode(pipeline.StepLyrics, &lyrics); err != nil {
		return nil, err
	}
	return []MediaPrompt{{Prompt: withStyle(fmt.Sprintf("album cover for %q, %s", lyrics.Title, in.Config.Theme), in.String("style"))}}, nil
}

func withStyle(prompt, style string) string {
	if style == "" {
		return prompt
	}
	return prompt + ", " + style
}

// tokensOf returns the correlation tokens a submitting step produced, indexed by
// position. Missing entries read as empty strings.
func tokensOf(in *Input, step pipeline.StepID) map[int]string {
	out := make(map[int]string)
	var res SubmitResult
	if err := in.Decode(step, &res); err != nil {
		return out
	}
	for _, t := range res.Tasks {
		out[t.Index] = t.Token
	}
	return out
}
