package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveStep(t *testing.T) {
	m := New()
	m.ObserveStep("video", "script", "completed", 2*time.Second)
	m.ObserveStep("video", "script", "completed", time.Second)

	if got := testutil.ToFloat64(m.StepExecutions.WithLabelValues("video", "script", "completed")); got != 2 {
		t.Errorf("step_executions_total = %v, want 2", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveStep("video", "script", "failed", time.Second)
	m.Signal("orphan")
	m.JobStarted()
	m.JobDone()
}

func TestHandler(t *testing.T) {
	m := New()
	m.Signal("applied")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if !strings.Contains(rec.Body.String(), "media_pipeline_completion_signals_total") {
		t.Error("metrics output missing completion_signals_total")
	}
}
