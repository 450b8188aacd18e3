package dto

type CreatePipelineRequest struct {
	ProjectID    string         `json:"project_id"`
	UserID       string         `json:"user_id"`
	PipelineType string         `json:"pipeline_type"`
	Mode         string         `json:"mode"`
	Config       map[string]any `json:"config"`
}

type RunStepRequest struct {
	Input map[string]any `json:"input"`
}

type PipelineResponse struct {
	ID                  string                  `json:"id"`
	ProjectID           string                  `json:"project_id"`
	UserID              string                  `json:"user_id,omitempty"`
	PipelineType        string                  `json:"pipeline_type"`
	Mode                string                  `json:"mode"`
	Status              string                  `json:"status"`
	Config              map[string]any          `json:"config"`
	Steps               []string                `json:"steps"`
	StepsState          map[string]StepResponse `json:"steps_state"`
	CurrentStep         *string                 `json:"current_step"`
	CurrentStepProgress int                     `json:"current_step_progress"`
	ErrorMessage        string                  `json:"error_message,omitempty"`
	StartedAt           *string                 `json:"started_at,omitempty"`
	CompletedAt         *string                 `json:"completed_at,omitempty"`
	CreatedAt           string                  `json:"created_at"`
	UpdatedAt           string                  `json:"updated_at"`
	Assets              []AssetResponse         `json:"assets,omitempty"`
}

type StepResponse struct {
	Step        string         `json:"step,omitempty"`
	Status      string         `json:"status"`
	Result      map[string]any `json:"result,omitempty"`
	Error       string         `json:"error,omitempty"`
	StartedAt   *string        `json:"started_at,omitempty"`
	CompletedAt *string        `json:"completed_at,omitempty"`
}

type StatusResponse struct {
	ID                  string  `json:"id"`
	Status              string  `json:"status"`
	CurrentStep         *string `json:"current_step"`
	CurrentStepProgress int     `json:"current_step_progress"`
	ErrorMessage        string  `json:"error_message,omitempty"`
}

type AssetResponse struct {
	ID          string  `json:"id"`
	Step        string  `json:"step"`
	Kind        string  `json:"kind"`
	Index       int     `json:"index"`
	Status      string  `json:"status"`
	URL         string  `json:"url,omitempty"`
	Error       string  `json:"error,omitempty"`
	CompletedAt *string `json:"completed_at,omitempty"`
}

type AuditLogResponse struct {
	ID        int64          `json:"id"`
	Step      string         `json:"step,omitempty"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
	CreatedAt string         `json:"created_at"`
}

// SignalRequest is the completion webhook body sent by the media provider.
type SignalRequest struct {
	Token  string `json:"token"`
	TaskID string `json:"task_id"`
	Status string `json:"status"`
	URL    string `json:"url"`
	Error  string `json:"error"`
}

type SignalAck struct {
	Received bool `json:"received"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	TraceID string `json:"trace_id,omitempty"`
}
