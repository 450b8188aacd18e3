package middleware

import (
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// statusRecorder remembers the status code written by the handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	n, err := s.ResponseWriter.Write(b)
	s.bytes += n
	return n, err
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

// PipelineID extracts the pipeline id from /pipelines/{id}/... paths.
func PipelineID(path string) string {
	rest, ok := strings.CutPrefix(path, "/pipelines/")
	if !ok {
		return ""
	}
	id, _, _ := strings.Cut(rest, "/")
	return id
}

// Logging logs every request with its trace id, and the outcome with status,
// size and duration. Pipeline routes carry the pipeline id.
func Logging(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			fields := []zap.Field{
				zap.String("trace_id", GetTraceID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
			}
			if id := PipelineID(r.URL.Path); id != "" {
				fields = append(fields, zap.String("pipeline_id", id))
			}
			reqLogger := logger.With(fields...)

			reqLogger.Debug("Incoming request", zap.String("remote_addr", r.RemoteAddr))

			rec := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)
			if rec.status == 0 {
				rec.status = http.StatusOK
			}

			log := reqLogger.Info
			switch {
			case rec.status >= http.StatusInternalServerError:
				log = reqLogger.Error
			case rec.status >= http.StatusBadRequest:
				log = reqLogger.Warn
			}
			log("Request completed",
				zap.Int("status", rec.status),
				zap.Int("bytes", rec.bytes),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}
