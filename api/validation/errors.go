package validation

import "errors"

var (
	ErrMissingProjectID  = errors.New("project_id is required")
	ErrUnknownType       = errors.New("unknown pipeline_type")
	ErrInvalidMode       = errors.New("mode must be auto or manual")
	ErrMissingConfigKey  = errors.New("missing required config key")
	ErrTooManyConfigKeys = errors.New("config has too many keys")
	ErrInvalidCoverImage = errors.New("cover_image must be a png, jpeg or gif file")
	ErrMissingToken      = errors.New("token is required")
	ErrMissingStatus     = errors.New("status is required")
)

var all = []error{
	ErrMissingProjectID,
	ErrUnknownType,
	ErrInvalidMode,
	ErrMissingConfigKey,
	ErrTooManyConfigKeys,
	ErrInvalidCoverImage,
	ErrMissingToken,
	ErrMissingStatus,
}

// IsValidationError reports whether err came from this package.
func IsValidationError(err error) bool {
	for _, target := range all {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
