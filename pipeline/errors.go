package pipeline

import "errors"

// Configuration errors. They are never retried.
var (
	ErrUnknownPipelineType = errors.New("unknown pipeline type")
	ErrUnknownStep         = errors.New("unknown step")
	ErrInvalidMode         = errors.New("invalid pipeline mode")
	ErrInvalidConfig       = errors.New("invalid pipeline config")
)

// Precondition errors. Surfaced to the caller, no state is mutated.
var (
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrWrongMode         = errors.New("operation not allowed in this pipeline mode")
	ErrMissingInput      = errors.New("missing required step input")
)

var (
	ErrPipelineNotFound     = errors.New("pipeline not found")
	ErrAssetNotFound        = errors.New("asset not found")
	ErrActivePipelineExists = errors.New("project already has an active pipeline")
	ErrNoChange             = errors.New("no change")
)

// IsPermanent reports whether err belongs to the configuration or precondition
// classes, which must not be retried.
func IsPermanent(err error) bool {
	return IsConfigError(err) || IsPreconditionError(err)
}

func IsConfigError(err error) bool {
	return errors.Is(err, ErrUnknownPipelineType) ||
		errors.Is(err, ErrUnknownStep) ||
		errors.Is(err, ErrInvalidMode) ||
		errors.Is(err, ErrInvalidConfig)
}

func IsPreconditionError(err error) bool {
	return errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrWrongMode) ||
		errors.Is(err, ErrMissingInput) ||
		errors.Is(err, ErrActivePipelineExists)
}
