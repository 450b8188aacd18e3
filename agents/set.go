package agents

import (
	"fmt"

	"mediaPipeline/pipeline"
)

// Set maps every step id to its agent. The mapping is a closed switch so an
// unmapped step is caught by Validate at startup.
type Set struct {
	Script     Agent
	Lyrics     Agent
	Images     Agent
	Thumbnail  Agent
	VideoClips Agent
	Music      Agent
	CoverArt   Agent
	Assemble   Agent
}

func (s *Set) For(step pipeline.StepID) (Agent, error) {
	var a Agent
	switch step {
	case pipeline.StepScript:
		a = s.Script
	case pipeline.StepLyrics:
		a = s.Lyrics
	case pipeline.StepImages:
		a = s.Images
	case pipeline.StepThumbnail:
		a = s.Thumbnail
	case pipeline.StepVideoClips:
		a = s.VideoClips
	case pipeline.StepMusic:
		a = s.Music
	case pipeline.StepCoverArt:
		a = s.CoverArt
	case pipeline.StepAssemble:
		a = s.Assemble
	default:
		return nil, fmt.Errorf("%w: no agent for %q", pipeline.ErrUnknownStep, step)
	}
	if a == nil {
		return nil, fmt.Errorf("%w: agent for %q is not configured", pipeline.ErrUnknownStep, step)
	}
	return a, nil
}

// Validate checks that every step of every pipeline type resolves to an agent.
func (s *Set) Validate() error {
	for _, step := range pipeline.AllSteps() {
		if _, err := s.For(step); err != nil {
			return err
		}
	}
	return nil
}
