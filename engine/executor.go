package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"mediaPipeline/agents"
	"mediaPipeline/metrics"
	"mediaPipeline/notify"
	"mediaPipeline/pipeline"
	"mediaPipeline/repository"
)

const DefaultStepTimeout = 5 * time.Minute

type Executor struct {
	repo        repository.Repository
	agents      *agents.Set
	notifier    notify.Notifier
	metrics     *metrics.Metrics
	logger      *zap.Logger
	audit       *auditor
	stepTimeout time.Duration
	now         func() time.Time
}

func NewExecutor(repo repository.Repository, set *agents.Set, notifier notify.Notifier, m *metrics.Metrics, logger *zap.Logger, stepTimeout time.Duration) *Executor {
	if stepTimeout <= 0 {
		stepTimeout = DefaultStepTimeout
	}
	return &Executor{
		repo:        repo,
		agents:      set,
		notifier:    notifier,
		metrics:     m,
		logger:      logger,
		audit:       &auditor{repo: repo, logger: logger, now: time.Now},
		stepTimeout: stepTimeout,
		now:         time.Now,
	}
}

// RunStep executes one step of a pipeline and records its outcome. A paused or
// terminal pipeline is left untouched and RunStep returns it without error, so
// jobs queued before a pause or cancel are dropped. Resume queues the work again.
// Agent failures are recorded on the step and returned.
func (e *Executor) RunStep(ctx context.Context, pipelineID string, step pipeline.StepID, extra map[string]any) (*pipeline.Pipeline, error) {
	agent, err := e.agents.For(step)
	if err != nil {
		return nil, err
	}

	var (
		skipped bool
		input   *agents.Input
	)
	p, err := e.repo.UpdatePipeline(ctx, pipelineID, func(p *pipeline.Pipeline) error {
		if !p.CanRunStep() || p.Status == pipeline.StatusPaused {
			skipped = true
			return pipeline.ErrNoChange
		}
		in, err := buildInput(p, step, extra)
		if err != nil {
			return err
		}
		input = in
		return p.BeginStep(step, e.now())
	})
	if err != nil {
		if pipeline.IsPreconditionError(err) {
			e.audit.record(ctx, pipelineID, step, pipeline.LogError, err.Error(), nil)
		}
		return nil, err
	}
	if skipped {
		if p.Status == pipeline.StatusPaused {
			e.audit.record(ctx, pipelineID, step, pipeline.LogInfo, "step skipped, pipeline is paused", nil)
		}
		e.logger.Info("Skipping step of inactive pipeline",
			zap.String("pipeline_id", pipelineID),
			zap.String("step", string(step)),
			zap.String("status", string(p.Status)),
		)
		return p, nil
	}

	e.notify(ctx, notify.Event{
		Type:       notify.StepStarted,
		PipelineID: pipelineID,
		StepID:     step,
		Progress:   0,
		Status:     string(pipeline.StepRunning),
	})
	e.audit.record(ctx, pipelineID, step, pipeline.LogInfo, "step started", nil)
	e.logger.Info("Running step",
		zap.String("pipeline_id", pipelineID),
		zap.String("pipeline_type", string(p.Type)),
		zap.String("step", string(step)),
	)

	start := time.Now()
	stepCtx, cancel := context.WithTimeout(ctx, e.stepTimeout)
	result, runErr := agent.Execute(stepCtx, input)
	cancel()
	if runErr != nil && errors.Is(stepCtx.Err(), context.DeadlineExceeded) {
		runErr = fmt.Errorf("timed out after %s: %w", e.stepTimeout, runErr)
	}
	elapsed := time.Since(start)

	// The step context may be done by now; bookkeeping must still land.
	bg := context.WithoutCancel(ctx)

	if runErr != nil {
		e.metrics.ObserveStep(string(p.Type), string(step), "failed", elapsed)
		return e.recordFailure(bg, p, step, runErr)
	}
	e.metrics.ObserveStep(string(p.Type), string(step), "completed", elapsed)
	return e.recordSuccess(bg, p, step, result)
}

func (e *Executor) recordSuccess(ctx context.Context, p *pipeline.Pipeline, step pipeline.StepID, result pipeline.Result) (*pipeline.Pipeline, error) {
	var terminal, completed bool
	updated, err := e.repo.UpdatePipeline(ctx, p.ID, func(p *pipeline.Pipeline) error {
		if p.IsTerminal() {
			terminal = true
			return pipeline.ErrNoChange
		}
		now := e.now()
		p.CompleteStep(step, result, now)
		completed = completeIfDone(p, now)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storing result of step %s: %w", step, err)
	}
	if terminal {
		e.audit.record(ctx, p.ID, step, pipeline.LogInfo, "step finished after pipeline became "+string(updated.Status)+", result discarded", nil)
		return updated, nil
	}

	next, _ := pipeline.NextStep(updated)
	e.audit.record(ctx, p.ID, step, pipeline.LogResult, "step completed", result)
	e.notify(ctx, notify.Event{
		Type:       notify.StepCompleted,
		PipelineID: p.ID,
		StepID:     step,
		Progress:   100,
		Status:     string(pipeline.StepCompleted),
		NextStep:   next,
	})
	if completed {
		announceCompleted(ctx, updated, e.metrics, e.audit, e.notifier, e.logger)
	}
	return updated, nil
}

func (e *Executor) recordFailure(ctx context.Context, p *pipeline.Pipeline, step pipeline.StepID, cause error) (*pipeline.Pipeline, error) {
	e.logger.Error("Step failed",
		zap.String("pipeline_id", p.ID),
		zap.String("step", string(step)),
		zap.Error(cause),
	)

	var terminal bool
	updated, err := e.repo.UpdatePipeline(ctx, p.ID, func(p *pipeline.Pipeline) error {
		if p.IsTerminal() {
			terminal = true
			return pipeline.ErrNoChange
		}
		p.FailStep(step, cause, e.now())
		return nil
	})
	if err != nil {
		return nil, errors.Join(cause, fmt.Errorf("recording failure of step %s: %w", step, err))
	}

	e.audit.record(ctx, p.ID, step, pipeline.LogError, cause.Error(), nil)
	if !terminal {
		e.notify(ctx, notify.Event{
			Type:       notify.StepFailed,
			PipelineID: p.ID,
			StepID:     step,
			Progress:   updated.CurrentStepProgress,
			Status:     string(pipeline.StepFailed),
			Message:    cause.Error(),
		})
	}
	return updated, fmt.Errorf("step %s: %w", step, cause)
}

func (e *Executor) notify(ctx context.Context, event notify.Event) {
	sendEvent(ctx, e.notifier, e.logger, event)
}

// buildInput merges the config, the results of the steps this step needs and
// the caller's extra values, and checks the step's required keys.
func buildInput(p *pipeline.Pipeline, step pipeline.StepID, extra map[string]any) (*agents.Input, error) {
	spec, err := pipeline.Spec(p.Type, step)
	if err != nil {
		return nil, err
	}

	in := &agents.Input{
		PipelineID: p.ID,
		Type:       p.Type,
		Step:       step,
		Config:     p.Config.Clone(),
		Prior:      make(map[pipeline.StepID]pipeline.Result, len(spec.Needs)),
		Extra:      extra,
	}
	for _, need := range spec.Needs {
		st, ok := p.StepsState[need]
		if !ok || st.Status != pipeline.StepCompleted {
			return nil, fmt.Errorf("%w: %s needs the result of %s", pipeline.ErrMissingInput, step, need)
		}
		in.Prior[need] = st.Result
	}
	for _, key := range spec.Required {
		if !in.Has(key) {
			return nil, fmt.Errorf("%w: %s requires %q", pipeline.ErrMissingInput, step, key)
		}
	}
	return in, nil
}
