package cache

import (
	"context"

	"go.uber.org/zap"

	"mediaPipeline/pipeline"
	"mediaPipeline/repository"
)

type StatusRecorder interface {
	Set(ctx context.Context, p *pipeline.Pipeline) error
}

type trackingRepo struct {
	repository.Repository
	status StatusRecorder
	logger *zap.Logger
}

// TrackStatus wraps repo so that every pipeline write also refreshes the cached
// status snapshot. Cache failures are logged and never fail the write.
func TrackStatus(repo repository.Repository, status StatusRecorder, logger *zap.Logger) repository.Repository {
	return &trackingRepo{Repository: repo, status: status, logger: logger}
}

func (r *trackingRepo) CreatePipeline(ctx context.Context, p *pipeline.Pipeline) error {
	if err := r.Repository.CreatePipeline(ctx, p); err != nil {
		return err
	}
	r.record(ctx, p)
	return nil
}

func (r *trackingRepo) UpdatePipeline(ctx context.Context, id string, fn repository.MutateFunc) (*pipeline.Pipeline, error) {
	p, err := r.Repository.UpdatePipeline(ctx, id, fn)
	if err != nil {
		return nil, err
	}
	r.record(ctx, p)
	return p, nil
}

func (r *trackingRepo) record(ctx context.Context, p *pipeline.Pipeline) {
	if err := r.status.Set(context.WithoutCancel(ctx), p); err != nil {
		r.logger.Warn("Failed to cache pipeline status",
			zap.String("pipeline_id", p.ID),
			zap.Error(err),
		)
	}
}
