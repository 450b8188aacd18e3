package pipeline

import (
	"fmt"
	"time"
)

const CancelledMessage = "pipeline cancelled"

// New builds a pending pipeline with every step of its type initialised to pending.
func New(id, projectID, userID string, t Type, mode Mode, cfg Config, now time.Time) (*Pipeline, error) {
	steps, err := StepsFor(t)
	if err != nil {
		return nil, err
	}
	if _, err := ParseMode(string(mode)); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}
	p := &Pipeline{
		ID:         id,
		ProjectID:  projectID,
		UserID:     userID,
		Type:       t,
		Mode:       mode,
		Status:     StatusPending,
		Config:     cfg,
		StepsState: make(map[StepID]*StepState, len(steps)),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	for _, s := range steps {
		p.StepsState[s] = &StepState{Status: StepPending}
	}
	return p, nil
}

func (p *Pipeline) IsTerminal() bool {
	return p.Status.IsTerminal()
}

func transitionError(op string, from Status) error {
	return fmt.Errorf("%w: cannot %s a %s pipeline", ErrInvalidTransition, op, from)
}

// Start moves a pending pipeline to running at its first step.
func (p *Pipeline) Start(now time.Time) error {
	if p.Status != StatusPending {
		return transitionError("start", p.Status)
	}
	steps, err := StepsFor(p.Type)
	if err != nil {
		return err
	}
	p.Status = StatusRunning
	p.CurrentStep = steps[0]
	p.CurrentStepProgress = 0
	p.StartedAt = &now
	p.UpdatedAt = now
	return nil
}

func (p *Pipeline) Pause(now time.Time) error {
	if p.Status != StatusRunning {
		return transitionError("pause", p.Status)
	}
	p.Status = StatusPaused
	p.UpdatedAt = now
	return nil
}

func (p *Pipeline) Resume(now time.Time) error {
	if p.Status != StatusPaused {
		return transitionError("resume", p.Status)
	}
	p.Status = StatusRunning
	p.UpdatedAt = now
	return nil
}

// Cancel fails a non-terminal pipeline with the cancellation message.
func (p *Pipeline) Cancel(now time.Time) error {
	if p.IsTerminal() {
		return transitionError("cancel", p.Status)
	}
	p.fail(CancelledMessage, now)
	return nil
}

// Fail records a terminal failure.
func (p *Pipeline) Fail(msg string, now time.Time) error {
	if p.IsTerminal() {
		return transitionError("fail", p.Status)
	}
	p.fail(msg, now)
	return nil
}

func (p *Pipeline) fail(msg string, now time.Time) {
	p.Status = StatusFailed
	p.ErrorMessage = msg
	p.CurrentStep = ""
	p.CompletedAt = &now
	p.UpdatedAt = now
}

// Complete marks the pipeline completed; every step must be completed.
func (p *Pipeline) Complete(now time.Time) error {
	if p.Status != StatusRunning {
		return transitionError("complete", p.Status)
	}
	if next, ok := NextStep(p); ok {
		return fmt.Errorf("%w: step %s is not completed", ErrInvalidTransition, next)
	}
	p.Status = StatusCompleted
	p.CurrentStep = ""
	p.CurrentStepProgress = 100
	p.CompletedAt = &now
	p.UpdatedAt = now
	return nil
}

// CanRunStep reports whether a step execution may touch this pipeline.
func (p *Pipeline) CanRunStep() bool {
	switch p.Status {
	case StatusPending, StatusRunning, StatusPaused:
		return true
	}
	return false
}

// BeginStep marks step as the running step.
func (p *Pipeline) BeginStep(step StepID, now time.Time) error {
	if !p.CanRunStep() {
		return transitionError("run a step of", p.Status)
	}
	if !IsStepOf(p.Type, step) {
		return fmt.Errorf("%w: %q is not a step of %s", ErrUnknownStep, step, p.Type)
	}
	p.Status = StatusRunning
	if p.StartedAt == nil {
		p.StartedAt = &now
	}
	p.CurrentStep = step
	p.CurrentStepProgress = 0
	p.ErrorMessage = ""
	st := p.Step(step)
	st.Status = StepRunning
	st.Error = ""
	st.StartedAt = &now
	st.CompletedAt = nil
	p.UpdatedAt = now
	return nil
}

// CompleteStep stores the step result. Re-running a completed step overwrites it.
func (p *Pipeline) CompleteStep(step StepID, result Result, now time.Time) {
	st := p.Step(step)
	st.Status = StepCompleted
	st.Result = result
	st.Error = ""
	st.CompletedAt = &now
	if p.CurrentStep == step {
		p.CurrentStepProgress = 100
	}
	p.UpdatedAt = now
}

func (p *Pipeline) FailStep(step StepID, cause error, now time.Time) {
	st := p.Step(step)
	st.Status = StepFailed
	st.Error = cause.Error()
	st.CompletedAt = &now
	p.ErrorMessage = fmt.Sprintf("step %s failed: %s", step, cause)
	p.UpdatedAt = now
}

// RunningSteps returns the steps currently in the running state.
func (p *Pipeline) RunningSteps() []StepID {
	var out []StepID
	for id, st := range p.StepsState {
		if st.Status == StepRunning {
			out = append(out, id)
		}
	}
	return out
}
