package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"mediaPipeline/cache"
	"mediaPipeline/kafka"
	"mediaPipeline/metrics"
	"mediaPipeline/pipeline"
)

type StepRunner interface {
	RunStep(ctx context.Context, pipelineID string, step pipeline.StepID, extra map[string]any) (*pipeline.Pipeline, error)
}

type PipelineRunner interface {
	Run(ctx context.Context, pipelineID string) error
}

type Finisher interface {
	Fail(ctx context.Context, pipelineID string, cause error) (*pipeline.Pipeline, error)
	Drop(ctx context.Context, pipelineID string, step pipeline.StepID, cause error)
}

type FollowUpHandler interface {
	FollowUp(ctx context.Context, token string) error
}

type Options struct {
	MaxAttempts     int
	PipelineTimeout time.Duration
	LockWait        time.Duration
	RetryInterval   time.Duration
}

func (o *Options) defaults() {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.PipelineTimeout <= 0 {
		o.PipelineTimeout = 15 * time.Minute
	}
	if o.LockWait <= 0 {
		o.LockWait = 30 * time.Second
	}
	if o.RetryInterval <= 0 {
		o.RetryInterval = time.Second
	}
}

// Processor is the retry layer: it runs each queued job under the pipeline's
// lock and a deadline, retries transient failures and fails the pipeline once
// attempts run out.
type Processor struct {
	steps    StepRunner
	runner   PipelineRunner
	controls Finisher
	bridge   FollowUpHandler
	locker   cache.Locker
	metrics  *metrics.Metrics
	logger   *zap.Logger
	opts     Options
}

func NewProcessor(steps StepRunner, runner PipelineRunner, controls Finisher, bridge FollowUpHandler, locker cache.Locker, m *metrics.Metrics, logger *zap.Logger, opts Options) *Processor {
	opts.defaults()
	return &Processor{
		steps:    steps,
		runner:   runner,
		controls: controls,
		bridge:   bridge,
		locker:   locker,
		metrics:  m,
		logger:   logger,
		opts:     opts,
	}
}

func (p *Processor) Process(ctx context.Context, msg *kafka.JobMessage) error {
	ctx = kafka.ContextWithTraceID(ctx, msg.TraceID)
	logger := p.logger.With(
		zap.String("trace_id", msg.TraceID),
		zap.String("pipeline_id", msg.PipelineID),
		zap.String("kind", string(msg.Kind)),
	)

	p.metrics.JobStarted()
	defer p.metrics.JobDone()

	var err error
	switch msg.Kind {
	case kafka.JobTaskCompleted:
		err = p.retry(ctx, msg.Kind, logger, func(ctx context.Context) error {
			return p.bridge.FollowUp(ctx, msg.Token)
		})
	case kafka.JobRunPipeline:
		err = p.exclusive(ctx, msg.PipelineID, func(ctx context.Context) error {
			return p.retry(ctx, msg.Kind, logger, func(ctx context.Context) error {
				return p.runner.Run(ctx, msg.PipelineID)
			})
		})
	case kafka.JobRunStep:
		err = p.exclusive(ctx, msg.PipelineID, func(ctx context.Context) error {
			return p.retry(ctx, msg.Kind, logger, func(ctx context.Context) error {
				_, err := p.steps.RunStep(ctx, msg.PipelineID, msg.StepID, msg.Extra)
				return err
			})
		})
	default:
		logger.Error("Dropping job of unknown kind")
		return fmt.Errorf("unknown job kind %q", msg.Kind)
	}

	if err != nil {
		logger.Error("Job failed", zap.Error(err))
		switch {
		case msg.Kind == kafka.JobTaskCompleted:
		case errors.Is(err, cache.ErrLockHeld):
			p.controls.Drop(context.WithoutCancel(ctx), msg.PipelineID, msg.StepID, err)
		case failsPipeline(err):
			if _, failErr := p.controls.Fail(context.WithoutCancel(ctx), msg.PipelineID, err); failErr != nil {
				logger.Error("Failed to mark pipeline failed", zap.Error(failErr))
			}
		}
	} else {
		logger.Info("Job done")
	}
	return err
}

// failsPipeline reports whether a job error is terminal for the pipeline. A
// lock held elsewhere, a rejected precondition, a missing pipeline and worker
// shutdown leave the pipeline as it is.
func failsPipeline(err error) bool {
	switch {
	case errors.Is(err, cache.ErrLockHeld),
		errors.Is(err, pipeline.ErrPipelineNotFound),
		errors.Is(err, context.Canceled),
		pipeline.IsPreconditionError(err):
		return false
	}
	return true
}

// exclusive runs fn holding the pipeline's lock, waiting up to LockWait for it.
// The lock outlives the job deadline so a slow job cannot overlap the next one.
func (p *Processor) exclusive(ctx context.Context, pipelineID string, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, p.opts.PipelineTimeout)
	defer cancel()

	var lock cache.Lock
	acquire := func() error {
		l, err := p.locker.Acquire(ctx, pipelineID, p.opts.PipelineTimeout+p.opts.LockWait)
		if err != nil {
			if errors.Is(err, cache.ErrLockHeld) {
				return err
			}
			return backoff.Permanent(err)
		}
		lock = l
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	b.MaxElapsedTime = p.opts.LockWait
	if err := backoff.Retry(acquire, backoff.WithContext(b, ctx)); err != nil {
		return fmt.Errorf("acquiring lock for %s: %w", pipelineID, err)
	}
	defer func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			p.logger.Warn("Failed to release pipeline lock", zap.String("pipeline_id", pipelineID), zap.Error(err))
		}
	}()

	if err := fn(ctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("job exceeded %s: %w", p.opts.PipelineTimeout, err)
		}
		return err
	}
	return nil
}

// retry runs fn up to MaxAttempts times with exponential backoff. Configuration
// and precondition errors stop it at once.
func (p *Processor) retry(ctx context.Context, kind kafka.JobKind, logger *zap.Logger, fn func(context.Context) error) error {
	attempt := 0
	op := func() error {
		attempt++
		err := fn(ctx)
		switch {
		case err == nil:
			p.metrics.JobAttempt(string(kind), "ok")
			return nil
		case pipeline.IsPermanent(err):
			p.metrics.JobAttempt(string(kind), "permanent")
			return backoff.Permanent(err)
		}
		p.metrics.JobAttempt(string(kind), "error")
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.opts.RetryInterval
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(p.opts.MaxAttempts-1)), ctx)

	return backoff.RetryNotify(op, policy, func(err error, wait time.Duration) {
		logger.Warn("Retrying job",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", p.opts.MaxAttempts),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	})
}
