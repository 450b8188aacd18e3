package pipeline

import (
	"time"
)

type Type string

const (
	TypeVideo      Type = "video"
	TypeMusicVideo Type = "music_video"
)

type Mode string

const (
	ModeAuto   Mode = "auto"
	ModeManual Mode = "manual"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeAuto, ModeManual:
		return Mode(s), nil
	case "":
		return ModeAuto, nil
	}
	return "", ErrInvalidMode
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
)

// Result is the structured output of a step. It is fed to later steps as input.
type Result map[string]any

type StepState struct {
	Status      StepStatus `json:"status"`
	Result      Result     `json:"result,omitempty"`
	Error       string     `json:"error,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

type Pipeline struct {
	ID                  string
	ProjectID           string
	UserID              string
	Type                Type
	Mode                Mode
	Status              Status
	Config              Config
	StepsState          map[StepID]*StepState
	CurrentStep         StepID
	CurrentStepProgress int
	ErrorMessage        string
	StartedAt           *time.Time
	CompletedAt         *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Clone returns a deep copy so stores can hand out snapshots.
func (p *Pipeline) Clone() *Pipeline {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Config = p.Config.Clone()
	cp.StepsState = make(map[StepID]*StepState, len(p.StepsState))
	for id, st := range p.StepsState {
		s := *st
		if st.Result != nil {
			s.Result = make(Result, len(st.Result))
			for k, v := range st.Result {
				s.Result[k] = v
			}
		}
		cp.StepsState[id] = &s
	}
	return &cp
}

// Step returns the state of a step, creating a pending entry if absent.
func (p *Pipeline) Step(id StepID) *StepState {
	if p.StepsState == nil {
		p.StepsState = make(map[StepID]*StepState)
	}
	st, ok := p.StepsState[id]
	if !ok {
		st = &StepState{Status: StepPending}
		p.StepsState[id] = st
	}
	return st
}

type AssetKind string

const (
	AssetImage AssetKind = "image"
	AssetVideo AssetKind = "video"
	AssetMusic AssetKind = "music"
)

type AssetStatus string

const (
	AssetPending   AssetStatus = "pending"
	AssetCompleted AssetStatus = "completed"
	AssetFailed    AssetStatus = "failed"
)

// Asset is a generated media placeholder awaiting an external completion signal.
type Asset struct {
	ID               string
	PipelineID       string
	StepID           StepID
	Kind             AssetKind
	Index            int
	CorrelationToken string
	ExternalID       string
	Status           AssetStatus
	URL              string
	Error            string
	CreatedAt        time.Time
	CompletedAt      *time.Time
}

type LogLevel string

const (
	LogInfo   LogLevel = "info"
	LogError  LogLevel = "error"
	LogResult LogLevel = "result"
)

type AuditLogEntry struct {
	ID         int64
	PipelineID string
	StepID     StepID
	Level      LogLevel
	Message    string
	Data       map[string]any
	CreatedAt  time.Time
}
