package kafka

import "mediaPipeline/pipeline"

type JobKind string

const (
	// JobRunPipeline drives an auto-mode pipeline until it completes, pauses or fails.
	JobRunPipeline JobKind = "run_pipeline"
	// JobRunStep executes a single step.
	JobRunStep JobKind = "run_step"
	// JobTaskCompleted is the follow-up of an accepted completion signal.
	JobTaskCompleted JobKind = "task_completed"
)

// JobMessage is one unit of background work. It is keyed by pipeline id so jobs of
// the same pipeline land on the same partition.
type JobMessage struct {
	Kind       JobKind         `json:"kind"`
	PipelineID string          `json:"pipeline_id"`
	StepID     pipeline.StepID `json:"step_id,omitempty"`
	Extra      map[string]any  `json:"extra,omitempty"`
	Token      string          `json:"token,omitempty"`
	TraceID    string          `json:"trace_id"`
}
