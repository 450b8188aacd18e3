package validation

import (
	"fmt"
	"path/filepath"
	"strings"

	"mediaPipeline/api/dto"
	"mediaPipeline/pipeline"
)

const maxConfigKeys = 64

func ValidateCreate(req *dto.CreatePipelineRequest) error {
	if strings.TrimSpace(req.ProjectID) == "" {
		return ErrMissingProjectID
	}

	required, err := pipeline.RequiredConfigKeys(pipeline.Type(req.PipelineType))
	if err != nil {
		return fmt.Errorf("%w: %q", ErrUnknownType, req.PipelineType)
	}
	if _, err := pipeline.ParseMode(req.Mode); err != nil {
		return fmt.Errorf("%w: got %q", ErrInvalidMode, req.Mode)
	}

	if len(req.Config) > maxConfigKeys {
		return fmt.Errorf("%w: %d > %d", ErrTooManyConfigKeys, len(req.Config), maxConfigKeys)
	}
	for _, key := range required {
		v, ok := req.Config[key]
		if !ok || v == nil || v == "" {
			return fmt.Errorf("%w: %s", ErrMissingConfigKey, key)
		}
	}

	if cover, ok := req.Config["cover_image"].(string); ok && cover != "" && !isAllowedImage(cover) {
		return ErrInvalidCoverImage
	}
	return nil
}

func ValidateSignal(req *dto.SignalRequest) error {
	if req.Token == "" {
		return ErrMissingToken
	}
	if req.Status == "" {
		return ErrMissingStatus
	}
	return nil
}

func isAllowedImage(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	allowed := map[string]bool{
		".jpg":  true,
		".jpeg": true,
		".png":  true,
		".gif":  true,
	}
	return allowed[ext]
}
