package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"mediaPipeline/api/dto"
	"mediaPipeline/api/middleware"
	"mediaPipeline/api/validation"
	"mediaPipeline/engine"
	"mediaPipeline/pipeline"
)

const maxBodySize = 1 << 20

type PipelineService interface {
	CreatePipeline(ctx context.Context, req *dto.CreatePipelineRequest) (*dto.PipelineResponse, error)
	GetPipeline(ctx context.Context, id string) (*dto.PipelineResponse, error)
	GetStatus(ctx context.Context, id string) (*dto.StatusResponse, error)
	Start(ctx context.Context, id string) (*dto.PipelineResponse, error)
	Pause(ctx context.Context, id string) (*dto.PipelineResponse, error)
	Resume(ctx context.Context, id string) (*dto.PipelineResponse, error)
	Cancel(ctx context.Context, id string) (*dto.PipelineResponse, error)
	RunStep(ctx context.Context, id, step string, req *dto.RunStepRequest) (*dto.PipelineResponse, error)
	StepResult(ctx context.Context, id, step string) (*dto.StepResponse, error)
	Logs(ctx context.Context, id string) ([]dto.AuditLogResponse, error)
}

type PipelineHandler struct {
	service PipelineService
	logger  *zap.Logger
}

func NewPipelineHandler(service PipelineService, logger *zap.Logger) *PipelineHandler {
	return &PipelineHandler{
		service: service,
		logger:  logger,
	}
}

func (h *PipelineHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /pipelines", h.Create)
	mux.HandleFunc("GET /pipelines/{id}", h.Get)
	mux.HandleFunc("GET /pipelines/{id}/status", h.Status)
	mux.HandleFunc("POST /pipelines/{id}/start", h.control("start", h.service.Start))
	mux.HandleFunc("POST /pipelines/{id}/pause", h.control("pause", h.service.Pause))
	mux.HandleFunc("POST /pipelines/{id}/resume", h.control("resume", h.service.Resume))
	mux.HandleFunc("POST /pipelines/{id}/cancel", h.control("cancel", h.service.Cancel))
	mux.HandleFunc("POST /pipelines/{id}/steps/{step}/run", h.RunStep)
	mux.HandleFunc("GET /pipelines/{id}/steps/{step}", h.StepResult)
	mux.HandleFunc("GET /pipelines/{id}/logs", h.Logs)
}

func (h *PipelineHandler) Create(w http.ResponseWriter, r *http.Request) {
	traceID := middleware.GetTraceID(r.Context())

	var req dto.CreatePipelineRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.handleError(w, "Invalid request body", err, traceID, http.StatusBadRequest)
		return
	}

	resp, err := h.service.CreatePipeline(r.Context(), &req)
	if err != nil {
		h.handleServiceError(w, "Failed to create pipeline", err, traceID)
		return
	}

	h.logger.Info("Pipeline created",
		zap.String("trace_id", traceID),
		zap.String("pipeline_id", resp.ID),
		zap.String("pipeline_type", resp.PipelineType),
		zap.String("mode", resp.Mode),
	)

	h.respondJSON(w, http.StatusCreated, resp)
}

func (h *PipelineHandler) Get(w http.ResponseWriter, r *http.Request) {
	traceID := middleware.GetTraceID(r.Context())

	resp, err := h.service.GetPipeline(r.Context(), r.PathValue("id"))
	if err != nil {
		h.handleServiceError(w, "Failed to get pipeline", err, traceID)
		return
	}

	h.respondJSON(w, http.StatusOK, resp)
}

func (h *PipelineHandler) Status(w http.ResponseWriter, r *http.Request) {
	traceID := middleware.GetTraceID(r.Context())

	resp, err := h.service.GetStatus(r.Context(), r.PathValue("id"))
	if err != nil {
		h.handleServiceError(w, "Failed to get pipeline status", err, traceID)
		return
	}

	h.respondJSON(w, http.StatusOK, resp)
}

func (h *PipelineHandler) control(action string, op func(context.Context, string) (*dto.PipelineResponse, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		traceID := middleware.GetTraceID(r.Context())
		id := r.PathValue("id")

		resp, err := op(r.Context(), id)
		if err != nil {
			h.handleServiceError(w, "Failed to "+action+" pipeline", err, traceID)
			return
		}

		h.logger.Info("Pipeline control applied",
			zap.String("trace_id", traceID),
			zap.String("pipeline_id", id),
			zap.String("action", action),
			zap.String("status", resp.Status),
		)

		h.respondJSON(w, http.StatusOK, resp)
	}
}

// RunStep queues a manual step run. The body is optional extra input.
func (h *PipelineHandler) RunStep(w http.ResponseWriter, r *http.Request) {
	traceID := middleware.GetTraceID(r.Context())
	id, step := r.PathValue("id"), r.PathValue("step")

	var req dto.RunStepRequest
	if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		h.handleError(w, "Invalid request body", err, traceID, http.StatusBadRequest)
		return
	}

	resp, err := h.service.RunStep(r.Context(), id, step, &req)
	if err != nil {
		h.handleServiceError(w, "Failed to run step", err, traceID)
		return
	}

	h.logger.Info("Step queued",
		zap.String("trace_id", traceID),
		zap.String("pipeline_id", id),
		zap.String("step", step),
	)

	h.respondJSON(w, http.StatusAccepted, resp)
}

func (h *PipelineHandler) StepResult(w http.ResponseWriter, r *http.Request) {
	traceID := middleware.GetTraceID(r.Context())

	resp, err := h.service.StepResult(r.Context(), r.PathValue("id"), r.PathValue("step"))
	if err != nil {
		h.handleServiceError(w, "Failed to get step result", err, traceID)
		return
	}

	h.respondJSON(w, http.StatusOK, resp)
}

func (h *PipelineHandler) Logs(w http.ResponseWriter, r *http.Request) {
	traceID := middleware.GetTraceID(r.Context())

	resp, err := h.service.Logs(r.Context(), r.PathValue("id"))
	if err != nil {
		h.handleServiceError(w, "Failed to get pipeline logs", err, traceID)
		return
	}

	h.respondJSON(w, http.StatusOK, resp)
}

func (h *PipelineHandler) handleServiceError(w http.ResponseWriter, message string, err error, traceID string) {
	status, code := errorStatus(err)
	if status < http.StatusInternalServerError {
		message = err.Error()
	}
	writeError(w, h.logger, message, code, err, traceID, status)
}

func (h *PipelineHandler) handleError(w http.ResponseWriter, message string, err error, traceID string, status int) {
	writeError(w, h.logger, message, "invalid_request", err, traceID, status)
}

func (h *PipelineHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	respondJSON(w, status, data)
}

// errorStatus maps engine and validation errors to an HTTP status and a short code.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, pipeline.ErrPipelineNotFound), errors.Is(err, pipeline.ErrAssetNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, pipeline.ErrActivePipelineExists):
		return http.StatusConflict, "active_pipeline_exists"
	case pipeline.IsPreconditionError(err):
		return http.StatusConflict, "precondition_failed"
	case pipeline.IsConfigError(err), validation.IsValidationError(err), errors.Is(err, engine.ErrInvalidSignal):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, engine.ErrInvalidSignature):
		return http.StatusUnauthorized, "invalid_signature"
	}
	return http.StatusInternalServerError, "internal"
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(v)
}

func writeError(w http.ResponseWriter, logger *zap.Logger, message, code string, err error, traceID string, status int) {
	log := logger.Warn
	if status >= http.StatusInternalServerError {
		log = logger.Error
	}
	log(message,
		zap.String("trace_id", traceID),
		zap.Int("status", status),
		zap.Error(err),
	)

	respondJSON(w, status, dto.ErrorResponse{
		Error:   message,
		Code:    code,
		TraceID: traceID,
	})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
