package handlers

import (
	"context"
	"io"
	"net/http"

	"go.uber.org/zap"

	"mediaPipeline/api/dto"
	"mediaPipeline/api/middleware"
	"mediaPipeline/engine"
)

type SignalService interface {
	HandleSignal(ctx context.Context, body []byte, signature string) (*dto.SignalAck, error)
}

// WebhookHandler receives completion signals from media providers.
type WebhookHandler struct {
	service SignalService
	logger  *zap.Logger
}

func NewWebhookHandler(service SignalService, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{
		service: service,
		logger:  logger,
	}
}

func (h *WebhookHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /webhooks/tasks", h.Tasks)
}

func (h *WebhookHandler) Tasks(w http.ResponseWriter, r *http.Request) {
	traceID := middleware.GetTraceID(r.Context())

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		writeError(w, h.logger, "Failed to read body", "invalid_request", err, traceID, http.StatusBadRequest)
		return
	}

	ack, err := h.service.HandleSignal(r.Context(), body, r.Header.Get(engine.SignatureHeader))
	if err != nil {
		status, code := errorStatus(err)
		message := "Failed to handle completion signal"
		if status < http.StatusInternalServerError {
			message = err.Error()
		}
		writeError(w, h.logger, message, code, err, traceID, status)
		return
	}

	respondJSON(w, http.StatusOK, ack)
}
