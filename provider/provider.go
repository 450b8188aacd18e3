// Package provider holds clients for the external generative services.
package provider

import (
	"context"

	"mediaPipeline/pipeline"
)

// TextGenerator produces text, typically JSON, from a system and user prompt.
type TextGenerator interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}

type MediaRequest struct {
	Kind             pipeline.AssetKind `json:"kind"`
	Prompt           string             `json:"prompt"`
	CorrelationToken string             `json:"correlation_token"`
	CallbackURL      string             `json:"callback_url,omitempty"`
	DurationSeconds  int                `json:"duration_seconds,omitempty"`
	AspectRatio      string             `json:"aspect_ratio,omitempty"`
	ReferenceToken   string             `json:"reference_token,omitempty"`
}

// MediaSubmitter queues a long-running media generation. The provider reports the
// outcome later through the completion webhook, echoing CorrelationToken.
type MediaSubmitter interface {
	Submit(ctx context.Context, req MediaRequest) (externalID string, err error)
}
