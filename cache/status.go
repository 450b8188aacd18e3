package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"mediaPipeline/database"
	"mediaPipeline/pipeline"
)

const (
	statusKeyPrefix = "pipeline:status:"
	defaultTTL      = 10 * time.Minute
)

// Snapshot is the cached subset of a pipeline used by status reads.
type Snapshot struct {
	Status              pipeline.Status `json:"status"`
	CurrentStep         pipeline.StepID `json:"current_step,omitempty"`
	CurrentStepProgress int             `json:"current_step_progress"`
	ErrorMessage        string          `json:"error_message,omitempty"`
}

func SnapshotOf(p *pipeline.Pipeline) Snapshot {
	return Snapshot{
		Status:              p.Status,
		CurrentStep:         p.CurrentStep,
		CurrentStepProgress: p.CurrentStepProgress,
		ErrorMessage:        p.ErrorMessage,
	}
}

type StatusCache struct {
	cache *database.Cache
	ttl   time.Duration
}

func NewStatusCache(cache *database.Cache, ttl time.Duration) *StatusCache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &StatusCache{cache: cache, ttl: ttl}
}

func (sc *StatusCache) Get(ctx context.Context, pipelineID string) (*Snapshot, error) {
	key := fmt.Sprintf("%s%s", statusKeyPrefix, pipelineID)

	data, err := sc.cache.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	var snap Snapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		snap = Snapshot{Status: pipeline.Status(data)}
	}

	return &snap, nil
}

func (sc *StatusCache) Set(ctx context.Context, p *pipeline.Pipeline) error {
	key := fmt.Sprintf("%s%s", statusKeyPrefix, p.ID)

	data, err := json.Marshal(SnapshotOf(p))
	if err != nil {
		return err
	}

	return sc.cache.Set(ctx, key, data, sc.ttl)
}

func (sc *StatusCache) Delete(ctx context.Context, pipelineID string) error {
	key := fmt.Sprintf("%s%s", statusKeyPrefix, pipelineID)
	return sc.cache.Del(ctx, key)
}
