package repository

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"mediaPipeline/pipeline"
)

// MemoryRepo keeps everything in process. Used by tests and local runs.
type MemoryRepo struct {
	mu        sync.Mutex
	pipelines map[string]*pipeline.Pipeline
	assets    map[string]*pipeline.Asset
	logs      []*pipeline.AuditLogEntry
	nextLogID int64
	now       func() time.Time
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		pipelines: make(map[string]*pipeline.Pipeline),
		assets:    make(map[string]*pipeline.Asset),
		now:       time.Now,
	}
}

func (r *MemoryRepo) CreatePipeline(ctx context.Context, p *pipeline.Pipeline) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.pipelines[p.ID]; ok {
		return ErrAlreadyExists
	}
	for _, existing := range r.pipelines {
		if existing.ProjectID == p.ProjectID && !existing.IsTerminal() {
			return pipeline.ErrActivePipelineExists
		}
	}
	r.pipelines[p.ID] = p.Clone()
	return nil
}

func (r *MemoryRepo) GetPipeline(ctx context.Context, id string) (*pipeline.Pipeline, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.pipelines[id]
	if !ok {
		return nil, pipeline.ErrPipelineNotFound
	}
	return p.Clone(), nil
}

func (r *MemoryRepo) UpdatePipeline(ctx context.Context, id string, fn MutateFunc) (*pipeline.Pipeline, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.pipelines[id]
	if !ok {
		return nil, pipeline.ErrPipelineNotFound
	}
	working := current.Clone()
	if err := fn(working); err != nil {
		if errors.Is(err, pipeline.ErrNoChange) {
			return current.Clone(), nil
		}
		return nil, err
	}
	working.UpdatedAt = r.now()
	r.pipelines[id] = working
	return working.Clone(), nil
}

func (r *MemoryRepo) ListStalePipelines(ctx context.Context, status pipeline.Status, updatedBefore time.Time) ([]*pipeline.Pipeline, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*pipeline.Pipeline
	for _, p := range r.pipelines {
		if p.Status == status && p.UpdatedAt.Before(updatedBefore) {
			out = append(out, p.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	return out, nil
}

func (r *MemoryRepo) CreateAsset(ctx context.Context, a *pipeline.Asset) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.assets[a.CorrelationToken]; ok {
		return ErrAlreadyExists
	}
	cp := *a
	r.assets[a.CorrelationToken] = &cp
	return nil
}

func (r *MemoryRepo) GetAssetByToken(ctx context.Context, token string) (*pipeline.Asset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.assets[token]
	if !ok {
		return nil, pipeline.ErrAssetNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *MemoryRepo) UpdateAssetByToken(ctx context.Context, token string, fn AssetMutateFunc) (*pipeline.Asset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.assets[token]
	if !ok {
		return nil, pipeline.ErrAssetNotFound
	}
	var owner *pipeline.Pipeline
	if p, ok := r.pipelines[current.PipelineID]; ok {
		owner = p.Clone()
	}
	working := *current
	if err := fn(&working, owner); err != nil {
		if errors.Is(err, pipeline.ErrNoChange) {
			cp := *current
			return &cp, nil
		}
		return nil, err
	}
	r.assets[token] = &working
	cp := working
	return &cp, nil
}

func (r *MemoryRepo) ListAssets(ctx context.Context, pipelineID string) ([]*pipeline.Asset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*pipeline.Asset
	for _, a := range r.assets {
		if a.PipelineID == pipelineID {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Index < out[j].Index
	})
	return out, nil
}

func (r *MemoryRepo) AppendAuditLog(ctx context.Context, e *pipeline.AuditLogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextLogID++
	cp := *e
	cp.ID = r.nextLogID
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = r.now()
	}
	e.ID = cp.ID
	r.logs = append(r.logs, &cp)
	return nil
}

func (r *MemoryRepo) ListAuditLogs(ctx context.Context, pipelineID string) ([]*pipeline.AuditLogEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*pipeline.AuditLogEntry
	for _, e := range r.logs {
		if e.PipelineID == pipelineID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}
