package repository

import (
	"context"
	"errors"
	"time"

	"mediaPipeline/pipeline"
)

var ErrAlreadyExists = errors.New("record already exists")

// MutateFunc changes a pipeline in place. Returning pipeline.ErrNoChange skips the
// write; any other error aborts it and is returned to the caller.
type MutateFunc func(p *pipeline.Pipeline) error

// AssetMutateFunc is the asset counterpart of MutateFunc. The owning pipeline is
// passed read-only so callers can guard on its status.
type AssetMutateFunc func(a *pipeline.Asset, owner *pipeline.Pipeline) error

type Repository interface {
	CreatePipeline(ctx context.Context, p *pipeline.Pipeline) error
	GetPipeline(ctx context.Context, id string) (*pipeline.Pipeline, error)
	UpdatePipeline(ctx context.Context, id string, fn MutateFunc) (*pipeline.Pipeline, error)
	ListStalePipelines(ctx context.Context, status pipeline.Status, updatedBefore time.Time) ([]*pipeline.Pipeline, error)

	CreateAsset(ctx context.Context, a *pipeline.Asset) error
	GetAssetByToken(ctx context.Context, token string) (*pipeline.Asset, error)
	UpdateAssetByToken(ctx context.Context, token string, fn AssetMutateFunc) (*pipeline.Asset, error)
	ListAssets(ctx context.Context, pipelineID string) ([]*pipeline.Asset, error)

	AppendAuditLog(ctx context.Context, e *pipeline.AuditLogEntry) error
	ListAuditLogs(ctx context.Context, pipelineID string) ([]*pipeline.AuditLogEntry, error)
}
