package pipeline

import (
	"errors"
	"testing"
	"time"
)

func newTestPipeline(t *testing.T, mode Mode) *Pipeline {
	t.Helper()
	p, err := New("p1", "proj", "user", TypeVideo, mode, Config{Theme: "rain", Duration: 60}, time.Now())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return p
}

func TestNew_InitialisesPendingSteps(t *testing.T) {
	p := newTestPipeline(t, ModeAuto)
	if p.Status != StatusPending {
		t.Errorf("Status = %s, want pending", p.Status)
	}
	if len(p.StepsState) != 5 {
		t.Fatalf("len(StepsState) = %d, want 5", len(p.StepsState))
	}
	for id, st := range p.StepsState {
		if st.Status != StepPending {
			t.Errorf("step %s status = %s, want pending", id, st.Status)
		}
	}
}

func TestNew_RejectsUnknownTypeAndMode(t *testing.T) {
	if _, err := New("p", "proj", "u", Type("radio"), ModeAuto, Config{}, time.Now()); !errors.Is(err, ErrUnknownPipelineType) {
		t.Errorf("error = %v, want ErrUnknownPipelineType", err)
	}
	if _, err := New("p", "proj", "u", TypeVideo, Mode("batch"), Config{}, time.Now()); !errors.Is(err, ErrInvalidMode) {
		t.Errorf("error = %v, want ErrInvalidMode", err)
	}
}

func TestTransitions(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name    string
		from    Status
		op      func(p *Pipeline) error
		want    Status
		wantErr bool
	}{
		{"pause running", StatusRunning, func(p *Pipeline) error { return p.Pause(now) }, StatusPaused, false},
		{"pause pending", StatusPending, func(p *Pipeline) error { return p.Pause(now) }, StatusPending, true},
		{"pause paused", StatusPaused, func(p *Pipeline) error { return p.Pause(now) }, StatusPaused, true},
		{"pause completed", StatusCompleted, func(p *Pipeline) error { return p.Pause(now) }, StatusCompleted, true},
		{"resume paused", StatusPaused, func(p *Pipeline) error { return p.Resume(now) }, StatusRunning, false},
		{"resume running", StatusRunning, func(p *Pipeline) error { return p.Resume(now) }, StatusRunning, true},
		{"resume failed", StatusFailed, func(p *Pipeline) error { return p.Resume(now) }, StatusFailed, true},
		{"cancel pending", StatusPending, func(p *Pipeline) error { return p.Cancel(now) }, StatusFailed, false},
		{"cancel paused", StatusPaused, func(p *Pipeline) error { return p.Cancel(now) }, StatusFailed, false},
		{"cancel completed", StatusCompleted, func(p *Pipeline) error { return p.Cancel(now) }, StatusCompleted, true},
		{"start pending", StatusPending, func(p *Pipeline) error { return p.Start(now) }, StatusRunning, false},
		{"start running", StatusRunning, func(p *Pipeline) error { return p.Start(now) }, StatusRunning, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestPipeline(t, ModeManual)
			p.Status = tt.from
			if tt.from == StatusRunning || tt.from == StatusPaused {
				p.CurrentStep = StepScript
			}
			before := p.Clone()

			err := tt.op(p)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidTransition) {
					t.Fatalf("error = %v, want ErrInvalidTransition", err)
				}
				if p.Status != before.Status || p.CurrentStep != before.CurrentStep || p.ErrorMessage != before.ErrorMessage {
					t.Error("failed transition mutated the pipeline")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if p.Status != tt.want {
				t.Errorf("Status = %s, want %s", p.Status, tt.want)
			}
		})
	}
}

func TestCancel_SetsMessageAndClearsStep(t *testing.T) {
	p := newTestPipeline(t, ModeAuto)
	_ = p.Start(time.Now())
	if err := p.Cancel(time.Now()); err != nil {
		t.Fatalf("Cancel() error: %v", err)
	}
	if p.ErrorMessage != CancelledMessage {
		t.Errorf("ErrorMessage = %q, want %q", p.ErrorMessage, CancelledMessage)
	}
	if p.CurrentStep != "" {
		t.Errorf("CurrentStep = %q, want empty", p.CurrentStep)
	}
}

func TestComplete_TerminalConsistency(t *testing.T) {
	p := newTestPipeline(t, ModeAuto)
	now := time.Now()
	_ = p.Start(now)

	if err := p.Complete(now); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("Complete() with pending steps error = %v, want ErrInvalidTransition", err)
	}

	for id := range p.StepsState {
		_ = p.BeginStep(id, now)
		p.CompleteStep(id, Result{"ok": true}, now)
	}
	if err := p.Complete(now); err != nil {
		t.Fatalf("Complete() error: %v", err)
	}
	if p.Status != StatusCompleted || p.CurrentStep != "" || p.CurrentStepProgress != 100 {
		t.Errorf("got status=%s step=%q progress=%d", p.Status, p.CurrentStep, p.CurrentStepProgress)
	}
	if p.CompletedAt == nil {
		t.Error("CompletedAt not set")
	}
}

func TestBeginStep_SingleActiveStep(t *testing.T) {
	p := newTestPipeline(t, ModeManual)
	now := time.Now()
	_ = p.Start(now)

	_ = p.BeginStep(StepScript, now)
	p.CompleteStep(StepScript, Result{}, now)
	_ = p.BeginStep(StepImages, now)

	running := p.RunningSteps()
	if len(running) != 1 || running[0] != StepImages {
		t.Errorf("RunningSteps() = %v, want [images]", running)
	}
	if p.CurrentStep != StepImages || p.CurrentStepProgress != 0 {
		t.Errorf("CurrentStep = %q progress = %d", p.CurrentStep, p.CurrentStepProgress)
	}
}

func TestBeginStep_Guards(t *testing.T) {
	p := newTestPipeline(t, ModeManual)
	now := time.Now()
	if err := p.BeginStep(StepLyrics, now); !errors.Is(err, ErrUnknownStep) {
		t.Errorf("BeginStep(lyrics) error = %v, want ErrUnknownStep", err)
	}
	p.Status = StatusFailed
	if err := p.BeginStep(StepScript, now); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("BeginStep on failed pipeline error = %v, want ErrInvalidTransition", err)
	}
}

func TestCompleteStep_RerunOverwrites(t *testing.T) {
	p := newTestPipeline(t, ModeManual)
	now := time.Now()
	_ = p.Start(now)
	_ = p.BeginStep(StepScript, now)
	p.CompleteStep(StepScript, Result{"title": "first"}, now)
	_ = p.BeginStep(StepImages, now)
	p.CompleteStep(StepImages, Result{"tasks": 3}, now)

	_ = p.BeginStep(StepScript, now)
	p.CompleteStep(StepScript, Result{"title": "second"}, now)

	if got := p.StepsState[StepScript].Result["title"]; got != "second" {
		t.Errorf("script title = %v, want second", got)
	}
	if p.StepsState[StepImages].Status != StepCompleted {
		t.Error("downstream step should keep its completed result")
	}
}
