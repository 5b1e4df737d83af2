package pipeline

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation  = errors.New("validation error")
	ErrAcquisition = errors.New("acquisition failed")
	ErrProcessing  = errors.New("processing failed")
	ErrMerge       = errors.New("merge failed")
	ErrTimeout     = errors.New("timed out")
	ErrStore       = errors.New("upload log store error")
)

// Wrap builds an error message that includes stage context while tagging it
// with marker for classification. marker should be one of the sentinels above.
func Wrap(marker error, stage, message string, err error) error {
	detail := buildDetail(stage, message)
	if marker == nil {
		marker = ErrAcquisition
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Kind names the error class for logs and API responses.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrAcquisition):
		return "acquisition"
	case errors.Is(err, ErrProcessing):
		return "processing"
	case errors.Is(err, ErrMerge):
		return "merge"
	case errors.Is(err, ErrStore):
		return "store"
	default:
		return "internal"
	}
}

func buildDetail(stage, message string) string {
	parts := make([]string, 0, 2)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "pipeline failure"
	}
	return strings.Join(parts, ": ")
}
