package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"mediaPipeline/kafka"
)

const TraceIDHeader = "X-Trace-ID"

// TraceID tags the request with the caller's trace id or a fresh one. The id
// rides along on every job the request enqueues.
func TraceID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get(TraceIDHeader)
		if traceID == "" {
			traceID = uuid.New().String()
		}

		ctx := WithTraceID(r.Context(), traceID)
		w.Header().Set(TraceIDHeader, traceID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func WithTraceID(ctx context.Context, traceID string) context.Context {
	return kafka.ContextWithTraceID(ctx, traceID)
}

func GetTraceID(ctx context.Context) string {
	return kafka.TraceIDFromContext(ctx)
}
