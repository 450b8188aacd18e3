package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"mediaPipeline/api/dto"
	"mediaPipeline/api/middleware"
	"mediaPipeline/api/validation"
	"mediaPipeline/engine"
	"mediaPipeline/pipeline"
)

type mockPipelineService struct {
	createFunc     func(ctx context.Context, req *dto.CreatePipelineRequest) (*dto.PipelineResponse, error)
	getFunc        func(ctx context.Context, id string) (*dto.PipelineResponse, error)
	controlFunc    func(ctx context.Context, action, id string) (*dto.PipelineResponse, error)
	runStepFunc    func(ctx context.Context, id, step string, req *dto.RunStepRequest) (*dto.PipelineResponse, error)
	stepResultFunc func(ctx context.Context, id, step string) (*dto.StepResponse, error)
}

func pipelineResponse(id, status string) *dto.PipelineResponse {
	return &dto.PipelineResponse{
		ID:           id,
		ProjectID:    "proj-1",
		PipelineType: "video",
		Mode:         "manual",
		Status:       status,
		CreatedAt:    time.Now().Format("2006-01-02T15:04:05Z"),
	}
}

func (m *mockPipelineService) CreatePipeline(ctx context.Context, req *dto.CreatePipelineRequest) (*dto.PipelineResponse, error) {
	if m.createFunc != nil {
		return m.createFunc(ctx, req)
	}
	return pipelineResponse("p1", "pending"), nil
}

func (m *mockPipelineService) GetPipeline(ctx context.Context, id string) (*dto.PipelineResponse, error) {
	if m.getFunc != nil {
		return m.getFunc(ctx, id)
	}
	return pipelineResponse(id, "running"), nil
}

func (m *mockPipelineService) GetStatus(ctx context.Context, id string) (*dto.StatusResponse, error) {
	step := "script"
	return &dto.StatusResponse{ID: id, Status: "running", CurrentStep: &step}, nil
}

func (m *mockPipelineService) control(ctx context.Context, action, id string) (*dto.PipelineResponse, error) {
	if m.controlFunc != nil {
		return m.controlFunc(ctx, action, id)
	}
	return pipelineResponse(id, "running"), nil
}

func (m *mockPipelineService) Start(ctx context.Context, id string) (*dto.PipelineResponse, error) {
	return m.control(ctx, "start", id)
}

func (m *mockPipelineService) Pause(ctx context.Context, id string) (*dto.PipelineResponse, error) {
	return m.control(ctx, "pause", id)
}

func (m *mockPipelineService) Resume(ctx context.Context, id string) (*dto.PipelineResponse, error) {
	return m.control(ctx, "resume", id)
}

func (m *mockPipelineService) Cancel(ctx context.Context, id string) (*dto.PipelineResponse, error) {
	return m.control(ctx, "cancel", id)
}

func (m *mockPipelineService) RunStep(ctx context.Context, id, step string, req *dto.RunStepRequest) (*dto.PipelineResponse, error) {
	if m.runStepFunc != nil {
		return m.runStepFunc(ctx, id, step, req)
	}
	return pipelineResponse(id, "running"), nil
}

func (m *mockPipelineService) StepResult(ctx context.Context, id, step string) (*dto.StepResponse, error) {
	if m.stepResultFunc != nil {
		return m.stepResultFunc(ctx, id, step)
	}
	return &dto.StepResponse{Step: step, Status: "completed"}, nil
}

func (m *mockPipelineService) Logs(ctx context.Context, id string) ([]dto.AuditLogResponse, error) {
	return []dto.AuditLogResponse{{ID: 1, Level: "info", Message: "pipeline created"}}, nil
}

func newMux(t *testing.T, svc PipelineService) http.Handler {
	t.Helper()
	mux := http.NewServeMux()
	NewPipelineHandler(svc, zaptest.NewLogger(t)).Register(mux)
	return middleware.TraceID(mux)
}

func TestPipelineHandler_Create_Success(t *testing.T) {
	var got *dto.CreatePipelineRequest
	svc := &mockPipelineService{createFunc: func(ctx context.Context, req *dto.CreatePipelineRequest) (*dto.PipelineResponse, error) {
		got = req
		return pipelineResponse("p1", "pending"), nil
	}}

	body := `{"project_id":"proj-1","user_id":"u1","pipeline_type":"video","mode":"manual","config":{"theme":"rain"}}`
	req := httptest.NewRequest("POST", "/pipelines", strings.NewReader(body))
	rec := httptest.NewRecorder()
	newMux(t, svc).ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Expected Content-Type application/json, got %s", ct)
	}
	if got == nil || got.ProjectID != "proj-1" || got.Config["theme"] != "rain" {
		t.Errorf("Unexpected request passed to service: %+v", got)
	}
}

func TestPipelineHandler_Create_InvalidJSON(t *testing.T) {
	req := httptest.NewRequest("POST", "/pipelines", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	newMux(t, &mockPipelineService{}).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", rec.Code)
	}
}

func TestPipelineHandler_ErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{"not found", pipeline.ErrPipelineNotFound, http.StatusNotFound},
		{"invalid transition", fmt.Errorf("%w: cannot start a running pipeline", pipeline.ErrInvalidTransition), http.StatusConflict},
		{"wrong mode", pipeline.ErrWrongMode, http.StatusConflict},
		{"missing input", pipeline.ErrMissingInput, http.StatusConflict},
		{"active pipeline", pipeline.ErrActivePipelineExists, http.StatusConflict},
		{"unknown step", pipeline.ErrUnknownStep, http.StatusBadRequest},
		{"validation", validation.ErrMissingProjectID, http.StatusBadRequest},
		{"invalid signature", engine.ErrInvalidSignature, http.StatusUnauthorized},
		{"internal", errors.New("connection refused"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockPipelineService{controlFunc: func(ctx context.Context, action, id string) (*dto.PipelineResponse, error) {
				return nil, tt.err
			}}

			req := httptest.NewRequest("POST", "/pipelines/p1/start", nil)
			req.Header.Set(middleware.TraceIDHeader, "trace-1")
			rec := httptest.NewRecorder()
			newMux(t, svc).ServeHTTP(rec, req)

			if rec.Code != tt.wantCode {
				t.Errorf("Expected status %d, got %d", tt.wantCode, rec.Code)
			}
			var resp dto.ErrorResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("Failed to decode error response: %v", err)
			}
			if resp.TraceID != "trace-1" {
				t.Errorf("Expected trace_id trace-1, got %q", resp.TraceID)
			}
			if tt.wantCode == http.StatusInternalServerError && strings.Contains(resp.Error, "connection refused") {
				t.Error("Internal errors must not leak their cause")
			}
		})
	}
}

func TestPipelineHandler_Controls_RouteToAction(t *testing.T) {
	for _, action := range []string{"start", "pause", "resume", "cancel"} {
		t.Run(action, func(t *testing.T) {
			var gotAction, gotID string
			svc := &mockPipelineService{controlFunc: func(ctx context.Context, a, id string) (*dto.PipelineResponse, error) {
				gotAction, gotID = a, id
				return pipelineResponse(id, "running"), nil
			}}

			rec := httptest.NewRecorder()
			newMux(t, svc).ServeHTTP(rec, httptest.NewRequest("POST", "/pipelines/p7/"+action, nil))

			if rec.Code != http.StatusOK {
				t.Errorf("Expected status 200, got %d", rec.Code)
			}
			if gotAction != action || gotID != "p7" {
				t.Errorf("Expected %s on p7, got %s on %s", action, gotAction, gotID)
			}
		})
	}
}

func TestPipelineHandler_RunStep(t *testing.T) {
	var gotStep string
	var gotInput map[string]any
	svc := &mockPipelineService{runStepFunc: func(ctx context.Context, id, step string, req *dto.RunStepRequest) (*dto.PipelineResponse, error) {
		gotStep, gotInput = step, req.Input
		return pipelineResponse(id, "running"), nil
	}}
	h := newMux(t, svc)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("POST", "/pipelines/p1/steps/images/run", bytes.NewBufferString(`{"input":{"style":"noir"}}`)))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("Expected status 202, got %d", rec.Code)
	}
	if gotStep != "images" || gotInput["style"] != "noir" {
		t.Errorf("Unexpected step %q input %v", gotStep, gotInput)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("POST", "/pipelines/p1/steps/script/run", nil))
	if rec.Code != http.StatusAccepted {
		t.Errorf("Expected status 202 without body, got %d", rec.Code)
	}
	if gotStep != "script" || gotInput != nil {
		t.Errorf("Unexpected step %q input %v", gotStep, gotInput)
	}
}

func TestPipelineHandler_StepResult(t *testing.T) {
	rec := httptest.NewRecorder()
	newMux(t, &mockPipelineService{}).ServeHTTP(rec, httptest.NewRequest("GET", "/pipelines/p1/steps/script", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	var resp dto.StepResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Step != "script" || resp.Status != "completed" {
		t.Errorf("Unexpected step response %+v", resp)
	}
}

func TestPipelineHandler_Routes(t *testing.T) {
	h := newMux(t, &mockPipelineService{})
	tests := []struct {
		method, path string
		wantCode     int
	}{
		{"GET", "/pipelines/p1", http.StatusOK},
		{"GET", "/pipelines/p1/status", http.StatusOK},
		{"GET", "/pipelines/p1/logs", http.StatusOK},
		{"DELETE", "/pipelines/p1", http.StatusMethodNotAllowed},
		{"GET", "/pipelines/p1/start", http.StatusMethodNotAllowed},
		{"GET", "/unknown", http.StatusNotFound},
	}

	for _, tt := range tests {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
		if rec.Code != tt.wantCode {
			t.Errorf("%s %s: expected status %d, got %d", tt.method, tt.path, tt.wantCode, rec.Code)
		}
	}
}
