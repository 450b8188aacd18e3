package pipeline

import (
	"fmt"
)

type StepID string

const (
	StepScript     StepID = "script"
	StepImages     StepID = "images"
	StepThumbnail  StepID = "thumbnail"
	StepVideoClips StepID = "video_clips"
	StepAssemble   StepID = "assemble"
	StepLyrics     StepID = "lyrics"
	StepMusic      StepID = "music"
	StepCoverArt   StepID = "cover_art"
)

// StepSpec declares what a step consumes: the predecessor results it needs and
// the config/extra keys it requires or accepts.
type StepSpec struct {
	ID       StepID
	Needs    []StepID
	Required []string
	Optional []string
}

var definitions = map[Type][]StepSpec{
	TypeVideo: {
		{ID: StepScript, Required: []string{"theme"}, Optional: []string{"brief", "duration", "style", "language"}},
		{ID: StepImages, Needs: []StepID{StepScript}, Optional: []string{"style", "aspect_ratio"}},
		{ID: StepThumbnail, Needs: []StepID{StepScript, StepImages}, Optional: []string{"cover_image"}},
		{ID: StepVideoClips, Needs: []StepID{StepScript, StepImages}, Optional: []string{"aspect_ratio", "duration"}},
		{ID: StepAssemble, Needs: []StepID{StepScript, StepThumbnail, StepVideoClips}, Optional: []string{"duration"}},
	},
	TypeMusicVideo: {
		{ID: StepLyrics, Required: []string{"theme"}, Optional: []string{"brief", "genre", "mood", "language"}},
		{ID: StepMusic, Needs: []StepID{StepLyrics}, Optional: []string{"genre", "mood", "duration"}},
		{ID: StepCoverArt, Needs: []StepID{StepLyrics}, Optional: []string{"style", "cover_image"}},
		{ID: StepVideoClips, Needs: []StepID{StepLyrics, StepCoverArt}, Optional: []string{"aspect_ratio", "duration"}},
		{ID: StepAssemble, Needs: []StepID{StepLyrics, StepMusic, StepCoverArt, StepVideoClips}, Optional: []string{"duration"}},
	},
}

// Types lists the known pipeline types.
func Types() []Type {
	return []Type{TypeVideo, TypeMusicVideo}
}

// StepsFor returns the ordered step list of a pipeline type.
func StepsFor(t Type) ([]StepID, error) {
	specs, ok := definitions[t]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPipelineType, t)
	}
	steps := make([]StepID, len(specs))
	for i, s := range specs {
		steps[i] = s.ID
	}
	return steps, nil
}

// Spec returns the declaration of step within pipeline type t.
func Spec(t Type, step StepID) (StepSpec, error) {
	specs, ok := definitions[t]
	if !ok {
		return StepSpec{}, fmt.Errorf("%w: %q", ErrUnknownPipelineType, t)
	}
	for _, s := range specs {
		if s.ID == step {
			return s, nil
		}
	}
	return StepSpec{}, fmt.Errorf("%w: %q is not a step of %s", ErrUnknownStep, step, t)
}

func IsStepOf(t Type, step StepID) bool {
	_, err := Spec(t, step)
	return err == nil
}

// NextStep returns the first step of the pipeline's type whose state is not completed.
func NextStep(p *Pipeline) (StepID, bool) {
	steps, err := StepsFor(p.Type)
	if err != nil {
		return "", false
	}
	for _, id := range steps {
		st, ok := p.StepsState[id]
		if !ok || st.Status != StepCompleted {
			return id, true
		}
	}
	return "", false
}

// RequiredConfigKeys is the union of required keys over all steps of t.
func RequiredConfigKeys(t Type) ([]string, error) {
	specs, ok := definitions[t]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPipelineType, t)
	}
	seen := make(map[string]bool)
	var keys []string
	for _, s := range specs {
		for _, k := range s.Required {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	return keys, nil
}

// AllSteps lists every step id used by any pipeline type, without duplicates.
func AllSteps() []StepID {
	seen := make(map[StepID]bool)
	var out []StepID
	for _, t := range Types() {
		for _, s := range definitions[t] {
			if !seen[s.ID] {
				seen[s.ID] = true
				out = append(out, s.ID)
			}
		}
	}
	return out
}
