package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"mediaPipeline/pipeline"
	"mediaPipeline/repository"
)

type recordingStatus struct {
	snapshots []Snapshot
	err       error
}

func (r *recordingStatus) Set(ctx context.Context, p *pipeline.Pipeline) error {
	r.snapshots = append(r.snapshots, SnapshotOf(p))
	return r.err
}

func TestTrackStatus_RecordsEveryWrite(t *testing.T) {
	status := &recordingStatus{}
	repo := TrackStatus(repository.NewMemoryRepo(), status, zaptest.NewLogger(t))
	ctx := context.Background()

	p, err := pipeline.New("p1", "proj", "u", pipeline.TypeVideo, pipeline.ModeManual, pipeline.Config{Theme: "rain"}, time.Now())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if err := repo.CreatePipeline(ctx, p); err != nil {
		t.Fatalf("CreatePipeline() error: %v", err)
	}
	if _, err := repo.UpdatePipeline(ctx, "p1", func(p *pipeline.Pipeline) error { return p.Start(time.Now()) }); err != nil {
		t.Fatalf("UpdatePipeline() error: %v", err)
	}

	if len(status.snapshots) != 2 {
		t.Fatalf("snapshots = %d, want 2", len(status.snapshots))
	}
	last := status.snapshots[1]
	if last.Status != pipeline.StatusRunning || last.CurrentStep != pipeline.StepScript {
		t.Errorf("last snapshot = %+v", last)
	}
}

func TestTrackStatus_SkipsFailedWritesAndIgnoresCacheErrors(t *testing.T) {
	status := &recordingStatus{err: errors.New("redis down")}
	repo := TrackStatus(repository.NewMemoryRepo(), status, zaptest.NewLogger(t))
	ctx := context.Background()

	if _, err := repo.UpdatePipeline(ctx, "missing", func(p *pipeline.Pipeline) error { return nil }); !errors.Is(err, pipeline.ErrPipelineNotFound) {
		t.Errorf("error = %v, want ErrPipelineNotFound", err)
	}
	if len(status.snapshots) != 0 {
		t.Error("failed writes must not be cached")
	}

	p, _ := pipeline.New("p1", "proj", "u", pipeline.TypeVideo, pipeline.ModeManual, pipeline.Config{Theme: "rain"}, time.Now())
	if err := repo.CreatePipeline(ctx, p); err != nil {
		t.Errorf("cache errors must not fail the write: %v", err)
	}
}
