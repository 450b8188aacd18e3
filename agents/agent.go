// Package agents implements the work behind each pipeline step.
//
// Synchronous agents return their final result before returning. Submitting
// agents create pending assets, queue external generation work and return the
// correlation tokens; the outcome arrives later through the completion webhook.
package agents

import (
	"context"
	"encoding/json"
	"fmt"

	"mediaPipeline/pipeline"
)

type Agent interface {
	Execute(ctx context.Context, in *Input) (pipeline.Result, error)
}

// AgentFunc adapts a function to the Agent interface.
type AgentFunc func(ctx context.Context, in *Input) (pipeline.Result, error)

func (f AgentFunc) Execute(ctx context.Context, in *Input) (pipeline.Result, error) {
	return f(ctx, in)
}

// Input is what a step sees: the pipeline config, the results of the
// predecessor steps it declared, and caller supplied extra values.
type Input struct {
	PipelineID string
	Type       pipeline.Type
	Step       pipeline.StepID
	Config     pipeline.Config
	Prior      map[pipeline.StepID]pipeline.Result
	Extra      map[string]any
}

// Map flattens the input: config keys, then prior results under their step id,
// then extra values, later sources winning.
func (in *Input) Map() map[string]any {
	m := in.Config.Map()
	for id, r := range in.Prior {
		m[string(id)] = r
	}
	for k, v := range in.Extra {
		m[k] = v
	}
	return m
}

// Has reports whether key is set in extra or config.
func (in *Input) Has(key string) bool {
	if v, ok := in.Extra[key]; ok && v != nil && v != "" {
		return true
	}
	return in.Config.Has(key)
}

// String returns a string value, extra overriding config.
func (in *Input) String(key string) string {
	if v, ok := in.Extra[key].(string); ok && v != "" {
		return v
	}
	if v, ok := in.Config.Map()[key].(string); ok {
		return v
	}
	return ""
}

// Decode unmarshals the result of a prior step into out.
func (in *Input) Decode(step pipeline.StepID, out any) error {
	r, ok := in.Prior[step]
	if !ok {
		return fmt.Errorf("%w: result of %s", pipeline.ErrMissingInput, step)
	}
	return decodeResult(r, out)
}

func decodeResult(r pipeline.Result, out any) error {
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func toResult(v any) (pipeline.Result, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var r pipeline.Result
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return r, nil
}

// ExecutionError is returned when an agent's external call or processing fails.
type ExecutionError struct {
	Step  pipeline.StepID
	Cause error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s agent: %v", e.Step, e.Cause)
}

func (e *ExecutionError) Unwrap() error {
	return e.Cause
}

func fail(step pipeline.StepID, format string, args ...any) error {
	return &ExecutionError{Step: step, Cause: fmt.Errorf(format, args...)}
}
