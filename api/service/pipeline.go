package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"mediaPipeline/api/dto"
	"mediaPipeline/api/validation"
	"mediaPipeline/cache"
	"mediaPipeline/engine"
	"mediaPipeline/pipeline"
)

const timeFormat = "2006-01-02T15:04:05Z"

type StatusCache interface {
	Get(ctx context.Context, pipelineID string) (*cache.Snapshot, error)
	Set(ctx context.Context, p *pipeline.Pipeline) error
}

type PipelineService struct {
	controls      *engine.Controls
	bridge        *engine.Bridge
	cache         StatusCache
	webhookSecret string
	logger        *zap.Logger
}

func NewPipelineService(controls *engine.Controls, bridge *engine.Bridge, cache StatusCache, webhookSecret string, logger *zap.Logger) *PipelineService {
	return &PipelineService{
		controls:      controls,
		bridge:        bridge,
		cache:         cache,
		webhookSecret: webhookSecret,
		logger:        logger,
	}
}

func (s *PipelineService) CreatePipeline(ctx context.Context, req *dto.CreatePipelineRequest) (*dto.PipelineResponse, error) {
	if err := validation.ValidateCreate(req); err != nil {
		return nil, err
	}

	p, err := s.controls.Create(ctx, engine.CreateParams{
		ProjectID: req.ProjectID,
		UserID:    req.UserID,
		Type:      pipeline.Type(req.PipelineType),
		Mode:      pipeline.Mode(req.Mode),
		Config:    req.Config,
	})
	if err != nil {
		return nil, err
	}

	return toPipelineResponse(p, nil), nil
}

func (s *PipelineService) GetPipeline(ctx context.Context, id string) (*dto.PipelineResponse, error) {
	p, err := s.controls.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	assets, err := s.controls.Assets(ctx, id)
	if err != nil {
		return nil, err
	}
	return toPipelineResponse(p, assets), nil
}

// GetStatus serves the status snapshot from cache, falling back to the store.
// Pipeline writes refresh the cache through cache.TrackStatus.
func (s *PipelineService) GetStatus(ctx context.Context, id string) (*dto.StatusResponse, error) {
	if snap, err := s.cache.Get(ctx, id); err == nil {
		return toStatusResponse(id, snap), nil
	}

	p, err := s.controls.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cacheStatus(ctx, p)
	snap := cache.SnapshotOf(p)
	return toStatusResponse(id, &snap), nil
}

func (s *PipelineService) Start(ctx context.Context, id string) (*dto.PipelineResponse, error) {
	return s.mutate(ctx, id, s.controls.Start)
}

func (s *PipelineService) Pause(ctx context.Context, id string) (*dto.PipelineResponse, error) {
	return s.mutate(ctx, id, s.controls.Pause)
}

func (s *PipelineService) Resume(ctx context.Context, id string) (*dto.PipelineResponse, error) {
	return s.mutate(ctx, id, s.controls.Resume)
}

func (s *PipelineService) Cancel(ctx context.Context, id string) (*dto.PipelineResponse, error) {
	return s.mutate(ctx, id, s.controls.Cancel)
}

func (s *PipelineService) RunStep(ctx context.Context, id, step string, req *dto.RunStepRequest) (*dto.PipelineResponse, error) {
	p, err := s.controls.RunStep(ctx, id, pipeline.StepID(step), req.Input)
	if err != nil {
		return nil, err
	}
	return toPipelineResponse(p, nil), nil
}

func (s *PipelineService) StepResult(ctx context.Context, id, step string) (*dto.StepResponse, error) {
	st, err := s.controls.StepResult(ctx, id, pipeline.StepID(step))
	if err != nil {
		return nil, err
	}
	resp := toStepResponse(st)
	resp.Step = step
	return &resp, nil
}

func (s *PipelineService) Logs(ctx context.Context, id string) ([]dto.AuditLogResponse, error) {
	entries, err := s.controls.Logs(ctx, id)
	if err != nil {
		return nil, err
	}
	out := make([]dto.AuditLogResponse, len(entries))
	for i, e := range entries {
		out[i] = dto.AuditLogResponse{
			ID:        e.ID,
			Step:      string(e.StepID),
			Level:     string(e.Level),
			Message:   e.Message,
			Data:      e.Data,
			CreatedAt: e.CreatedAt.UTC().Format(timeFormat),
		}
	}
	return out, nil
}

// HandleSignal verifies and applies a completion webhook. The raw body is needed
// for the signature check.
func (s *PipelineService) HandleSignal(ctx context.Context, body []byte, signature string) (*dto.SignalAck, error) {
	if err := engine.VerifySignature(s.webhookSecret, body, signature); err != nil {
		return nil, err
	}

	var req dto.SignalRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, fmt.Errorf("%w: %v", engine.ErrInvalidSignal, err)
	}
	if err := validation.ValidateSignal(&req); err != nil {
		return nil, err
	}

	ack, err := s.bridge.Complete(ctx, engine.Signal{
		Token:      req.Token,
		Status:     req.Status,
		URL:        req.URL,
		ExternalID: req.TaskID,
		Error:      req.Error,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Completion signal handled",
		zap.String("token", req.Token),
		zap.Bool("applied", ack.Applied),
		zap.String("reason", ack.Reason),
	)
	return &dto.SignalAck{Received: true}, nil
}

func (s *PipelineService) mutate(ctx context.Context, id string, op func(context.Context, string) (*pipeline.Pipeline, error)) (*dto.PipelineResponse, error) {
	p, err := op(ctx, id)
	if err != nil {
		return nil, err
	}
	return toPipelineResponse(p, nil), nil
}

func (s *PipelineService) cacheStatus(ctx context.Context, p *pipeline.Pipeline) {
	if err := s.cache.Set(ctx, p); err != nil {
		s.logger.Warn("Failed to cache status", zap.String("pipeline_id", p.ID), zap.Error(err))
	}
}

func toPipelineResponse(p *pipeline.Pipeline, assets []*pipeline.Asset) *dto.PipelineResponse {
	steps, _ := pipeline.StepsFor(p.Type)
	resp := &dto.PipelineResponse{
		ID:                  p.ID,
		ProjectID:           p.ProjectID,
		UserID:              p.UserID,
		PipelineType:        string(p.Type),
		Mode:                string(p.Mode),
		Status:              string(p.Status),
		Config:              p.Config.Map(),
		Steps:               make([]string, len(steps)),
		StepsState:          make(map[string]dto.StepResponse, len(p.StepsState)),
		CurrentStep:         optionalStep(p.CurrentStep),
		CurrentStepProgress: p.CurrentStepProgress,
		ErrorMessage:        p.ErrorMessage,
		StartedAt:           formatTime(p.StartedAt),
		CompletedAt:         formatTime(p.CompletedAt),
		CreatedAt:           p.CreatedAt.UTC().Format(timeFormat),
		UpdatedAt:           p.UpdatedAt.UTC().Format(timeFormat),
	}
	for i, s := range steps {
		resp.Steps[i] = string(s)
	}
	for id, st := range p.StepsState {
		resp.StepsState[string(id)] = toStepResponse(st)
	}
	for _, a := range assets {
		resp.Assets = append(resp.Assets, dto.AssetResponse{
			ID:          a.ID,
			Step:        string(a.StepID),
			Kind:        string(a.Kind),
			Index:       a.Index,
			Status:      string(a.Status),
			URL:         a.URL,
			Error:       a.Error,
			CompletedAt: formatTime(a.CompletedAt),
		})
	}
	return resp
}

func toStepResponse(st *pipeline.StepState) dto.StepResponse {
	return dto.StepResponse{
		Status:      string(st.Status),
		Result:      st.Result,
		Error:       st.Error,
		StartedAt:   formatTime(st.StartedAt),
		CompletedAt: formatTime(st.CompletedAt),
	}
}

func toStatusResponse(id string, snap *cache.Snapshot) *dto.StatusResponse {
	return &dto.StatusResponse{
		ID:                  id,
		Status:              string(snap.Status),
		CurrentStep:         optionalStep(snap.CurrentStep),
		CurrentStepProgress: snap.CurrentStepProgress,
		ErrorMessage:        snap.ErrorMessage,
	}
}

func optionalStep(step pipeline.StepID) *string {
	if step == "" {
		return nil
	}
	s := string(step)
	return &s
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	formatted := t.UTC().Format(timeFormat)
	return &formatted
}
