// Package notify pushes pipeline progress events to interested observers.
package notify

import (
	"context"
	"time"

	"go.uber.org/zap"

	"mediaPipeline/pipeline"
)

type EventType string

const (
	PipelineStarted   EventType = "pipeline_started"
	PipelinePaused    EventType = "pipeline_paused"
	PipelineResumed   EventType = "pipeline_resumed"
	PipelineCompleted EventType = "pipeline_completed"
	PipelineFailed    EventType = "pipeline_failed"
	StepStarted       EventType = "step_started"
	StepCompleted     EventType = "step_completed"
	StepFailed        EventType = "step_failed"
	AssetReady        EventType = "asset_ready"
	AssetFailed       EventType = "asset_failed"
	JobDropped        EventType = "job_dropped"
)

type Event struct {
	Type       EventType       `json:"type"`
	PipelineID string          `json:"pipeline_id"`
	StepID     pipeline.StepID `json:"step_id,omitempty"`
	Progress   int             `json:"progress"`
	Status     string          `json:"status"`
	Message    string          `json:"message,omitempty"`
	NextStep   pipeline.StepID `json:"next_step,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
}

// Notifier delivers events. Delivery is best effort: callers log failures and
// carry on, progress reporting never fails a step.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

type Multi []Notifier

func (m Multi) Notify(ctx context.Context, event Event) error {
	var firstErr error
	for _, n := range m {
		if err := n.Notify(ctx, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, event Event) error {
	n.logger.Info("Pipeline event",
		zap.String("type", string(event.Type)),
		zap.String("pipeline_id", event.PipelineID),
		zap.String("step", string(event.StepID)),
		zap.Int("progress", event.Progress),
		zap.String("status", event.Status),
		zap.String("next_step", string(event.NextStep)),
		zap.String("message", event.Message),
	)
	return nil
}
