package middleware

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"mediaPipeline/api/dto"
)

// Recovery turns a handler panic into a 500 with the standard error body.
func Recovery(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				traceID := GetTraceID(r.Context())
				logger.Error("Panic recovered",
					zap.String("trace_id", traceID),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.String("pipeline_id", PipelineID(r.URL.Path)),
					zap.Any("panic", rec),
					zap.Stack("stack"),
				)

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				json.NewEncoder(w).Encode(dto.ErrorResponse{
					Error:   "Internal server error",
					Code:    "internal",
					TraceID: traceID,
				})
			}()

			next.ServeHTTP(w, r)
		})
	}
}
