// Package engine drives pipelines: the step executor, the automatic runner,
// the operator controls and the bridge for asynchronous completion signals.
package engine

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"mediaPipeline/kafka"
	"mediaPipeline/metrics"
	"mediaPipeline/notify"
	"mediaPipeline/pipeline"
	"mediaPipeline/repository"
)

// Dispatcher queues units of work for the worker. kafka.Producer satisfies it.
type Dispatcher interface {
	SendJob(ctx context.Context, message *kafka.JobMessage) error
}

// MemoryDispatcher keeps queued jobs in memory. Used by tests and local runs.
type MemoryDispatcher struct {
	mu   sync.Mutex
	jobs []*kafka.JobMessage
	Err  error
}

func (d *MemoryDispatcher) SendJob(ctx context.Context, message *kafka.JobMessage) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Err != nil {
		return d.Err
	}
	d.jobs = append(d.jobs, message)
	return nil
}

func (d *MemoryDispatcher) Jobs() []*kafka.JobMessage {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*kafka.JobMessage, len(d.jobs))
	copy(out, d.jobs)
	return out
}

// Drain returns the queued jobs and empties the queue.
func (d *MemoryDispatcher) Drain() []*kafka.JobMessage {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := d.jobs
	d.jobs = nil
	return out
}

type auditor struct {
	repo   repository.Repository
	logger *zap.Logger
	now    func() time.Time
}

// record appends an audit entry. Audit writes never fail the operation they describe.
func (a *auditor) record(ctx context.Context, pipelineID string, step pipeline.StepID, level pipeline.LogLevel, msg string, data map[string]any) {
	entry := &pipeline.AuditLogEntry{
		PipelineID: pipelineID,
		StepID:     step,
		Level:      level,
		Message:    msg,
		Data:       data,
		CreatedAt:  a.now(),
	}
	if err := a.repo.AppendAuditLog(context.WithoutCancel(ctx), entry); err != nil {
		a.logger.Error("Failed to append audit log",
			zap.String("pipeline_id", pipelineID),
			zap.String("step", string(step)),
			zap.Error(err),
		)
	}
}

// sendEvent delivers a progress notification. Delivery failures are logged only.
func sendEvent(ctx context.Context, n notify.Notifier, logger *zap.Logger, event notify.Event) {
	if n == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if err := n.Notify(context.WithoutCancel(ctx), event); err != nil {
		logger.Warn("Failed to deliver notification",
			zap.String("type", string(event.Type)),
			zap.String("pipeline_id", event.PipelineID),
			zap.Error(err),
		)
	}
}

// completeIfDone completes a running manual pipeline whose steps all completed.
// It reports whether p was completed.
func completeIfDone(p *pipeline.Pipeline, now time.Time) bool {
	if p.Mode != pipeline.ModeManual || p.Status != pipeline.StatusRunning {
		return false
	}
	if _, ok := pipeline.NextStep(p); ok {
		return false
	}
	return p.Complete(now) == nil
}

// announceCompleted records a pipeline that just reached completed.
func announceCompleted(ctx context.Context, p *pipeline.Pipeline, m *metrics.Metrics, audit *auditor, n notify.Notifier, logger *zap.Logger) {
	m.PipelineFinished(string(p.Type), string(p.Status))
	audit.record(ctx, p.ID, "", pipeline.LogInfo, "pipeline completed", nil)
	sendEvent(ctx, n, logger, notify.Event{
		Type:       notify.PipelineCompleted,
		PipelineID: p.ID,
		Progress:   100,
		Status:     string(p.Status),
	})
	logger.Info("Pipeline completed",
		zap.String("pipeline_id", p.ID),
		zap.String("pipeline_type", string(p.Type)),
		zap.String("mode", string(p.Mode)),
	)
}
