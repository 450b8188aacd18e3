package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap/zaptest"

	"mediaPipeline/cache"
	"mediaPipeline/kafka"
	"mediaPipeline/metrics"
	"mediaPipeline/pipeline"
)

type mockSteps struct {
	RunStepFunc func(ctx context.Context, pipelineID string, step pipeline.StepID, extra map[string]any) (*pipeline.Pipeline, error)
}

func (m *mockSteps) RunStep(ctx context.Context, pipelineID string, step pipeline.StepID, extra map[string]any) (*pipeline.Pipeline, error) {
	return m.RunStepFunc(ctx, pipelineID, step, extra)
}

type mockRunner struct {
	RunFunc func(ctx context.Context, pipelineID string) error
}

func (m *mockRunner) Run(ctx context.Context, pipelineID string) error {
	return m.RunFunc(ctx, pipelineID)
}

type mockFinisher struct {
	mu      sync.Mutex
	failed  []error
	dropped []pipeline.StepID
}

func (m *mockFinisher) Fail(ctx context.Context, pipelineID string, cause error) (*pipeline.Pipeline, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed = append(m.failed, cause)
	return &pipeline.Pipeline{ID: pipelineID, Status: pipeline.StatusFailed}, nil
}

func (m *mockFinisher) Drop(ctx context.Context, pipelineID string, step pipeline.StepID, cause error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropped = append(m.dropped, step)
}

func (m *mockFinisher) Drops() []pipeline.StepID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]pipeline.StepID(nil), m.dropped...)
}

func (m *mockFinisher) Failures() []error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]error(nil), m.failed...)
}

type mockBridge struct {
	FollowUpFunc func(ctx context.Context, token string) error
}

func (m *mockBridge) FollowUp(ctx context.Context, token string) error {
	return m.FollowUpFunc(ctx, token)
}

type fixture struct {
	runner   *mockRunner
	steps    *mockSteps
	bridge   *mockBridge
	finisher *mockFinisher
	locker   *cache.LocalLocker
}

func newProcessor(t *testing.T, opts Options, m *metrics.Metrics) (*Processor, *fixture) {
	t.Helper()
	f := &fixture{
		runner: &mockRunner{RunFunc: func(ctx context.Context, id string) error { return nil }},
		steps: &mockSteps{RunStepFunc: func(ctx context.Context, id string, step pipeline.StepID, extra map[string]any) (*pipeline.Pipeline, error) {
			return nil, nil
		}},
		bridge:   &mockBridge{FollowUpFunc: func(ctx context.Context, token string) error { return nil }},
		finisher: &mockFinisher{},
		locker:   cache.NewLocalLocker(),
	}
	if opts.RetryInterval == 0 {
		opts.RetryInterval = time.Millisecond
	}
	p := NewProcessor(f.steps, f.runner, f.finisher, f.bridge, f.locker, m, zaptest.NewLogger(t), opts)
	return p, f
}

func runPipeline(id string) *kafka.JobMessage {
	return &kafka.JobMessage{Kind: kafka.JobRunPipeline, PipelineID: id, TraceID: "trace-" + id}
}

func TestProcess_RetriesTransientErrors(t *testing.T) {
	m := metrics.New()
	p, f := newProcessor(t, Options{MaxAttempts: 3}, m)
	var calls atomic.Int32
	f.runner.RunFunc = func(ctx context.Context, id string) error {
		if calls.Add(1) < 3 {
			return errors.New("provider timeout")
		}
		return nil
	}

	if err := p.Process(context.Background(), runPipeline("p1")); err != nil {
		t.Fatalf("Process() error: %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
	if len(f.finisher.Failures()) != 0 {
		t.Error("pipeline must not be failed after a successful retry")
	}
	if got := testutil.ToFloat64(m.JobAttempts.WithLabelValues("run_pipeline", "error")); got != 2 {
		t.Errorf("error attempts = %v, want 2", got)
	}
}

func TestProcess_FailsPipelineWhenAttemptsExhausted(t *testing.T) {
	p, f := newProcessor(t, Options{MaxAttempts: 2}, nil)
	var calls atomic.Int32
	f.runner.RunFunc = func(ctx context.Context, id string) error {
		calls.Add(1)
		return errors.New("step images: provider unavailable")
	}

	err := p.Process(context.Background(), runPipeline("p1"))
	if err == nil {
		t.Fatal("expected error")
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("calls = %d, want 2", got)
	}
	failures := f.finisher.Failures()
	if len(failures) != 1 || !strings.Contains(failures[0].Error(), "provider unavailable") {
		t.Errorf("failures = %v", failures)
	}
}

func TestProcess_PermanentErrorsAreNotRetried(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantFail bool
	}{
		{"precondition", pipeline.ErrMissingInput, false},
		{"wrong mode", pipeline.ErrWrongMode, false},
		{"configuration", pipeline.ErrUnknownStep, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, f := newProcessor(t, Options{MaxAttempts: 5}, nil)
			var calls atomic.Int32
			f.steps.RunStepFunc = func(ctx context.Context, id string, step pipeline.StepID, extra map[string]any) (*pipeline.Pipeline, error) {
				calls.Add(1)
				return nil, tt.err
			}

			err := p.Process(context.Background(), &kafka.JobMessage{Kind: kafka.JobRunStep, PipelineID: "p1", StepID: pipeline.StepImages})
			if !errors.Is(err, tt.err) {
				t.Errorf("error = %v, want %v", err, tt.err)
			}
			if got := calls.Load(); got != 1 {
				t.Errorf("calls = %d, want 1", got)
			}
			if got := len(f.finisher.Failures()) == 1; got != tt.wantFail {
				t.Errorf("pipeline failed = %v, want %v", got, tt.wantFail)
			}
		})
	}
}

func TestProcess_PassesStepAndExtra(t *testing.T) {
	p, f := newProcessor(t, Options{}, nil)
	var gotStep pipeline.StepID
	var gotExtra map[string]any
	var gotTrace string
	f.steps.RunStepFunc = func(ctx context.Context, id string, step pipeline.StepID, extra map[string]any) (*pipeline.Pipeline, error) {
		gotStep, gotExtra, gotTrace = step, extra, kafka.TraceIDFromContext(ctx)
		return nil, nil
	}

	msg := &kafka.JobMessage{Kind: kafka.JobRunStep, PipelineID: "p1", StepID: pipeline.StepScript, Extra: map[string]any{"brief": "x"}, TraceID: "t-1"}
	if err := p.Process(context.Background(), msg); err != nil {
		t.Fatalf("Process() error: %v", err)
	}
	if gotStep != pipeline.StepScript || gotExtra["brief"] != "x" || gotTrace != "t-1" {
		t.Errorf("got step=%s extra=%v trace=%s", gotStep, gotExtra, gotTrace)
	}
}

func TestProcess_LockHeldElsewhere(t *testing.T) {
	p, f := newProcessor(t, Options{LockWait: 30 * time.Millisecond}, nil)
	if _, err := f.locker.Acquire(context.Background(), "p1", time.Minute); err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}
	var called atomic.Bool
	f.runner.RunFunc = func(ctx context.Context, id string) error {
		called.Store(true)
		return nil
	}

	err := p.Process(context.Background(), runPipeline("p1"))
	if !errors.Is(err, cache.ErrLockHeld) {
		t.Errorf("error = %v, want ErrLockHeld", err)
	}
	if called.Load() {
		t.Error("runner must not run without the lock")
	}
	if len(f.finisher.Failures()) != 0 {
		t.Error("lock contention must not fail the pipeline")
	}
	if got := f.finisher.Drops(); len(got) != 1 {
		t.Errorf("drops = %v, want 1", got)
	}
}

func TestProcess_DroppedStepIsReported(t *testing.T) {
	p, f := newProcessor(t, Options{LockWait: 30 * time.Millisecond}, nil)
	if _, err := f.locker.Acquire(context.Background(), "p1", time.Minute); err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}

	err := p.Process(context.Background(), &kafka.JobMessage{Kind: kafka.JobRunStep, PipelineID: "p1", StepID: pipeline.StepImages})
	if !errors.Is(err, cache.ErrLockHeld) {
		t.Fatalf("error = %v, want ErrLockHeld", err)
	}
	got := f.finisher.Drops()
	if len(got) != 1 || got[0] != pipeline.StepImages {
		t.Errorf("drops = %v, want [images]", got)
	}
}

func TestProcess_FailedStepIsNotReportedAsDropped(t *testing.T) {
	p, f := newProcessor(t, Options{MaxAttempts: 1}, nil)
	f.steps.RunStepFunc = func(ctx context.Context, id string, step pipeline.StepID, extra map[string]any) (*pipeline.Pipeline, error) {
		return nil, errors.New("provider unavailable")
	}

	if err := p.Process(context.Background(), &kafka.JobMessage{Kind: kafka.JobRunStep, PipelineID: "p1", StepID: pipeline.StepImages}); err == nil {
		t.Fatal("expected error")
	}
	if got := f.finisher.Drops(); len(got) != 0 {
		t.Errorf("drops = %v, want none", got)
	}
	if len(f.finisher.Failures()) != 1 {
		t.Errorf("failures = %d, want 1", len(f.finisher.Failures()))
	}
}

func TestProcess_SingleFlightPerPipeline(t *testing.T) {
	p, f := newProcessor(t, Options{LockWait: 5 * time.Second}, nil)
	var active, peak, runs atomic.Int32
	f.runner.RunFunc = func(ctx context.Context, id string) error {
		n := active.Add(1)
		if n > peak.Load() {
			peak.Store(n)
		}
		time.Sleep(20 * time.Millisecond)
		active.Add(-1)
		runs.Add(1)
		return nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := p.Process(context.Background(), runPipeline("p1")); err != nil {
				t.Errorf("Process() error: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := peak.Load(); got != 1 {
		t.Errorf("peak concurrent runs = %d, want 1", got)
	}
	if got := runs.Load(); got != 4 {
		t.Errorf("runs = %d, want 4", got)
	}
}

func TestProcess_TimeoutFailsPipeline(t *testing.T) {
	p, f := newProcessor(t, Options{PipelineTimeout: 20 * time.Millisecond, MaxAttempts: 1}, nil)
	f.runner.RunFunc = func(ctx context.Context, id string) error {
		<-ctx.Done()
		return ctx.Err()
	}

	err := p.Process(context.Background(), runPipeline("p1"))
	if err == nil || !strings.Contains(err.Error(), "exceeded") {
		t.Fatalf("error = %v, want deadline error", err)
	}
	if len(f.finisher.Failures()) != 1 {
		t.Errorf("failures = %d, want 1", len(f.finisher.Failures()))
	}
}

func TestProcess_TaskCompleted(t *testing.T) {
	p, f := newProcessor(t, Options{}, nil)
	var gotToken string
	f.bridge.FollowUpFunc = func(ctx context.Context, token string) error {
		gotToken = token
		return nil
	}
	// Follow-ups do not need the pipeline lock.
	if _, err := f.locker.Acquire(context.Background(), "p1", time.Minute); err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}

	err := p.Process(context.Background(), &kafka.JobMessage{Kind: kafka.JobTaskCompleted, PipelineID: "p1", Token: "tok"})
	if err != nil {
		t.Fatalf("Process() error: %v", err)
	}
	if gotToken != "tok" {
		t.Errorf("token = %q, want tok", gotToken)
	}
}

func TestProcess_UnknownKind(t *testing.T) {
	p, _ := newProcessor(t, Options{}, nil)
	if err := p.Process(context.Background(), &kafka.JobMessage{Kind: "reindex"}); err == nil {
		t.Error("expected error for unknown kind")
	}
}
