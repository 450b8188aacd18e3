package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mediaPipeline/kafka"
	"mediaPipeline/metrics"
	"mediaPipeline/notify"
	"mediaPipeline/pipeline"
	"mediaPipeline/repository"
)

type CreateParams struct {
	ProjectID string
	UserID    string
	Type      pipeline.Type
	Mode      pipeline.Mode
	Config    map[string]any
}

// Controls are the operations exposed to clients and operators. They only
// mutate pipeline status; step execution happens on the worker.
type Controls struct {
	repo       repository.Repository
	dispatcher Dispatcher
	notifier   notify.Notifier
	metrics    *metrics.Metrics
	logger     *zap.Logger
	audit      *auditor
	now        func() time.Time
	newID      func() string
}

func NewControls(repo repository.Repository, dispatcher Dispatcher, notifier notify.Notifier, m *metrics.Metrics, logger *zap.Logger) *Controls {
	return &Controls{
		repo:       repo,
		dispatcher: dispatcher,
		notifier:   notifier,
		metrics:    m,
		logger:     logger,
		audit:      &auditor{repo: repo, logger: logger, now: time.Now},
		now:        time.Now,
		newID:      func() string { return uuid.New().String() },
	}
}

func (c *Controls) Create(ctx context.Context, params CreateParams) (*pipeline.Pipeline, error) {
	if params.ProjectID == "" {
		return nil, fmt.Errorf("%w: project id is required", pipeline.ErrInvalidConfig)
	}
	mode, err := pipeline.ParseMode(string(params.Mode))
	if err != nil {
		return nil, fmt.Errorf("%w: %q", err, params.Mode)
	}
	required, err := pipeline.RequiredConfigKeys(params.Type)
	if err != nil {
		return nil, err
	}
	cfg, err := pipeline.ConfigFromMap(params.Config)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", pipeline.ErrInvalidConfig, err)
	}
	for _, key := range required {
		if !cfg.Has(key) {
			return nil, fmt.Errorf("%w: %q is required for %s pipelines", pipeline.ErrInvalidConfig, key, params.Type)
		}
	}

	p, err := pipeline.New(c.newID(), params.ProjectID, params.UserID, params.Type, mode, cfg, c.now())
	if err != nil {
		return nil, err
	}
	if err := c.repo.CreatePipeline(ctx, p); err != nil {
		return nil, err
	}

	c.audit.record(ctx, p.ID, "", pipeline.LogInfo, "pipeline created", map[string]any{
		"pipeline_type": string(p.Type),
		"mode":          string(p.Mode),
	})
	c.logger.Info("Pipeline created",
		zap.String("pipeline_id", p.ID),
		zap.String("project_id", p.ProjectID),
		zap.String("pipeline_type", string(p.Type)),
		zap.String("mode", string(p.Mode)),
	)
	return p, nil
}

func (c *Controls) Get(ctx context.Context, id string) (*pipeline.Pipeline, error) {
	return c.repo.GetPipeline(ctx, id)
}

// Start moves a pending pipeline to running at its first step. Automatic
// pipelines are handed to the runner through the queue.
func (c *Controls) Start(ctx context.Context, id string) (*pipeline.Pipeline, error) {
	p, err := c.repo.UpdatePipeline(ctx, id, func(p *pipeline.Pipeline) error {
		return p.Start(c.now())
	})
	if err != nil {
		return nil, err
	}

	c.audit.record(ctx, id, p.CurrentStep, pipeline.LogInfo, "pipeline started", nil)
	c.notify(ctx, notify.Event{
		Type:       notify.PipelineStarted,
		PipelineID: id,
		StepID:     p.CurrentStep,
		Status:     string(p.Status),
	})

	if p.Mode == pipeline.ModeAuto {
		if err := c.dispatch(ctx, kafka.JobRunPipeline, id, "", nil); err != nil {
			return c.failDispatch(ctx, id, err)
		}
	}
	return p, nil
}

func (c *Controls) Pause(ctx context.Context, id string) (*pipeline.Pipeline, error) {
	p, err := c.repo.UpdatePipeline(ctx, id, func(p *pipeline.Pipeline) error {
		return p.Pause(c.now())
	})
	if err != nil {
		return nil, err
	}

	c.audit.record(ctx, id, p.CurrentStep, pipeline.LogInfo, "pipeline paused", nil)
	c.notify(ctx, notify.Event{
		Type:       notify.PipelinePaused,
		PipelineID: id,
		StepID:     p.CurrentStep,
		Progress:   p.CurrentStepProgress,
		Status:     string(p.Status),
	})
	return p, nil
}

// Resume continues a paused pipeline. A manual pipeline re-runs its current step
// unless that step already completed, and completes if every step did; an
// automatic one re-enters the runner, which picks up at the first step that is
// not completed.
func (c *Controls) Resume(ctx context.Context, id string) (*pipeline.Pipeline, error) {
	var completed bool
	p, err := c.repo.UpdatePipeline(ctx, id, func(p *pipeline.Pipeline) error {
		now := c.now()
		if err := p.Resume(now); err != nil {
			return err
		}
		completed = completeIfDone(p, now)
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.audit.record(ctx, id, p.CurrentStep, pipeline.LogInfo, "pipeline resumed", nil)
	c.notify(ctx, notify.Event{
		Type:       notify.PipelineResumed,
		PipelineID: id,
		StepID:     p.CurrentStep,
		Progress:   p.CurrentStepProgress,
		Status:     string(p.Status),
	})
	if completed {
		announceCompleted(ctx, p, c.metrics, c.audit, c.notifier, c.logger)
		return p, nil
	}

	switch {
	case p.Mode == pipeline.ModeAuto:
		err = c.dispatch(ctx, kafka.JobRunPipeline, id, "", nil)
	case p.CurrentStep != "" && p.Step(p.CurrentStep).Status != pipeline.StepCompleted:
		err = c.dispatch(ctx, kafka.JobRunStep, id, p.CurrentStep, nil)
	}
	if err != nil {
		return c.failDispatch(ctx, id, err)
	}
	return p, nil
}

func (c *Controls) Cancel(ctx context.Context, id string) (*pipeline.Pipeline, error) {
	p, err := c.repo.UpdatePipeline(ctx, id, func(p *pipeline.Pipeline) error {
		return p.Cancel(c.now())
	})
	if err != nil {
		return nil, err
	}

	c.metrics.PipelineFinished(string(p.Type), string(p.Status))
	c.audit.record(ctx, id, "", pipeline.LogInfo, pipeline.CancelledMessage, nil)
	c.notify(ctx, notify.Event{
		Type:       notify.PipelineFailed,
		PipelineID: id,
		Status:     string(p.Status),
		Message:    p.ErrorMessage,
	})
	return p, nil
}

// RunStep queues one step of a running manual pipeline.
func (c *Controls) RunStep(ctx context.Context, id string, step pipeline.StepID, extra map[string]any) (*pipeline.Pipeline, error) {
	p, err := c.repo.GetPipeline(ctx, id)
	if err != nil {
		return nil, err
	}
	if !pipeline.IsStepOf(p.Type, step) {
		return nil, fmt.Errorf("%w: %q is not a step of %s", pipeline.ErrUnknownStep, step, p.Type)
	}
	if p.Mode != pipeline.ModeManual {
		return nil, fmt.Errorf("%w: steps of %s pipelines cannot be run individually", pipeline.ErrWrongMode, p.Mode)
	}
	if p.Status != pipeline.StatusRunning {
		return nil, fmt.Errorf("%w: cannot run a step of a %s pipeline", pipeline.ErrInvalidTransition, p.Status)
	}

	if err := c.dispatch(ctx, kafka.JobRunStep, id, step, extra); err != nil {
		return nil, fmt.Errorf("queueing step %s: %w", step, err)
	}
	c.audit.record(ctx, id, step, pipeline.LogInfo, "step queued", nil)
	return p, nil
}

func (c *Controls) StepResult(ctx context.Context, id string, step pipeline.StepID) (*pipeline.StepState, error) {
	p, err := c.repo.GetPipeline(ctx, id)
	if err != nil {
		return nil, err
	}
	if !pipeline.IsStepOf(p.Type, step) {
		return nil, fmt.Errorf("%w: %q is not a step of %s", pipeline.ErrUnknownStep, step, p.Type)
	}
	return p.Step(step), nil
}

// Fail marks a pipeline failed with cause. Already terminal pipelines are
// returned unchanged.
func (c *Controls) Fail(ctx context.Context, id string, cause error) (*pipeline.Pipeline, error) {
	var terminal bool
	p, err := c.repo.UpdatePipeline(ctx, id, func(p *pipeline.Pipeline) error {
		if p.IsTerminal() {
			terminal = true
			return pipeline.ErrNoChange
		}
		return p.Fail(cause.Error(), c.now())
	})
	if err != nil || terminal {
		return p, err
	}

	c.metrics.PipelineFinished(string(p.Type), string(p.Status))
	c.audit.record(ctx, id, "", pipeline.LogError, "pipeline failed: "+cause.Error(), nil)
	c.notify(ctx, notify.Event{
		Type:       notify.PipelineFailed,
		PipelineID: id,
		Status:     string(p.Status),
		Message:    p.ErrorMessage,
	})
	c.logger.Error("Pipeline failed",
		zap.String("pipeline_id", id),
		zap.Error(cause),
	)
	return p, nil
}

// Drop records a queued job the worker gave up on without running it, so the
// client that queued it learns the work did not happen.
func (c *Controls) Drop(ctx context.Context, id string, step pipeline.StepID, cause error) {
	msg := "job dropped: " + cause.Error()
	c.audit.record(ctx, id, step, pipeline.LogError, msg, nil)
	c.notify(ctx, notify.Event{
		Type:       notify.JobDropped,
		PipelineID: id,
		StepID:     step,
		Message:    msg,
	})
	c.logger.Warn("Job dropped",
		zap.String("pipeline_id", id),
		zap.String("step", string(step)),
		zap.Error(cause),
	)
}

// Reap fails running pipelines that have not been updated for longer than
// olderThan, which happens when the worker hosting their run died. Manual
// pipelines waiting for the operator's next step are left alone.
func (c *Controls) Reap(ctx context.Context, olderThan time.Duration) ([]*pipeline.Pipeline, error) {
	cutoff := c.now().Add(-olderThan)
	stale, err := c.repo.ListStalePipelines(ctx, pipeline.StatusRunning, cutoff)
	if err != nil {
		return nil, err
	}

	var reaped []*pipeline.Pipeline
	for _, p := range stale {
		if p.Mode != pipeline.ModeAuto && len(p.RunningSteps()) == 0 {
			continue
		}
		cause := fmt.Errorf("no progress on step %s since %s", p.CurrentStep, p.UpdatedAt.UTC().Format(time.RFC3339))
		failed, err := c.Fail(ctx, p.ID, cause)
		if err != nil {
			return reaped, fmt.Errorf("reaping %s: %w", p.ID, err)
		}
		if failed.Status == pipeline.StatusFailed && failed.ErrorMessage == cause.Error() {
			reaped = append(reaped, failed)
		}
	}
	return reaped, nil
}

func (c *Controls) Logs(ctx context.Context, id string) ([]*pipeline.AuditLogEntry, error) {
	if _, err := c.repo.GetPipeline(ctx, id); err != nil {
		return nil, err
	}
	return c.repo.ListAuditLogs(ctx, id)
}

func (c *Controls) Assets(ctx context.Context, id string) ([]*pipeline.Asset, error) {
	return c.repo.ListAssets(ctx, id)
}

func (c *Controls) dispatch(ctx context.Context, kind kafka.JobKind, id string, step pipeline.StepID, extra map[string]any) error {
	return c.dispatcher.SendJob(ctx, &kafka.JobMessage{
		Kind:       kind,
		PipelineID: id,
		StepID:     step,
		Extra:      extra,
		TraceID:    kafka.TraceIDFromContext(ctx),
	})
}

// failDispatch records a queueing failure on a pipeline that was already moved
// to running, so it does not sit there without a job.
func (c *Controls) failDispatch(ctx context.Context, id string, cause error) (*pipeline.Pipeline, error) {
	err := fmt.Errorf("queueing pipeline run: %w", cause)
	if _, failErr := c.Fail(context.WithoutCancel(ctx), id, err); failErr != nil {
		c.logger.Error("Failed to record dispatch failure",
			zap.String("pipeline_id", id),
			zap.Error(failErr),
		)
	}
	return nil, err
}

func (c *Controls) notify(ctx context.Context, event notify.Event) {
	sendEvent(ctx, c.notifier, c.logger, event)
}
