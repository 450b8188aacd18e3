package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"mediaPipeline/metrics"
	"mediaPipeline/notify"
	"mediaPipeline/pipeline"
	"mediaPipeline/repository"
)

const DefaultPipelineTimeout = 15 * time.Minute

// Runner advances an automatic pipeline step by step until it completes, fails,
// is paused or is cancelled.
type Runner struct {
	repo     repository.Repository
	exec     *Executor
	notifier notify.Notifier
	metrics  *metrics.Metrics
	logger   *zap.Logger
	audit    *auditor
	now      func() time.Time
}

func NewRunner(repo repository.Repository, exec *Executor, notifier notify.Notifier, m *metrics.Metrics, logger *zap.Logger) *Runner {
	return &Runner{
		repo:     repo,
		exec:     exec,
		notifier: notifier,
		metrics:  m,
		logger:   logger,
		audit:    &auditor{repo: repo, logger: logger, now: time.Now},
		now:      time.Now,
	}
}

// Run enters the loop at the first step that is not completed. A step error is
// returned as is: the pipeline stays running so the caller can retry the run or
// fail it.
func (r *Runner) Run(ctx context.Context, pipelineID string) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		p, err := r.repo.GetPipeline(ctx, pipelineID)
		if err != nil {
			return err
		}
		if p.Mode != pipeline.ModeAuto {
			return fmt.Errorf("%w: %s pipeline cannot be run automatically", pipeline.ErrWrongMode, p.Mode)
		}
		switch p.Status {
		case pipeline.StatusCompleted, pipeline.StatusFailed, pipeline.StatusPaused:
			r.logger.Info("Runner stopped",
				zap.String("pipeline_id", pipelineID),
				zap.String("status", string(p.Status)),
			)
			return nil
		case pipeline.StatusPending:
			return fmt.Errorf("%w: pipeline has not been started", pipeline.ErrInvalidTransition)
		}

		next, ok := pipeline.NextStep(p)
		if !ok {
			return r.complete(ctx, p)
		}
		if _, err := r.exec.RunStep(ctx, pipelineID, next, nil); err != nil {
			return err
		}
	}
}

func (r *Runner) complete(ctx context.Context, p *pipeline.Pipeline) error {
	var terminal bool
	updated, err := r.repo.UpdatePipeline(ctx, p.ID, func(p *pipeline.Pipeline) error {
		if p.IsTerminal() || p.Status == pipeline.StatusPaused {
			terminal = true
			return pipeline.ErrNoChange
		}
		return p.Complete(r.now())
	})
	if err != nil {
		return err
	}
	if terminal {
		return nil
	}

	announceCompleted(ctx, updated, r.metrics, r.audit, r.notifier, r.logger)
	return nil
}
