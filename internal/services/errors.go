package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidName         = errors.New("invalid asset name")
	ErrTransientIO         = errors.New("transient io failure")
	ErrEncodeFailure       = errors.New("encode failure")
	ErrPublishPartial      = errors.New("publish partially applied")
	ErrOrchestratorQuery   = errors.New("orchestrator query failure")
	ErrRegistryCorruption  = errors.New("registry corruption")
	ErrValidation          = errors.New("validation error")
	ErrConfiguration       = errors.New("configuration error")
	ErrNotFound            = errors.New("not found")
	ErrTimeout             = errors.New("timeout")
	errUnclassifiedFailure = errors.New("failure")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransientIO
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Kind returns a stable snake_case label for the error's marker. It is used as a
// log field and a metrics label.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidName):
		return "invalid_name"
	case errors.Is(err, ErrTransientIO):
		return "transient_io"
	case errors.Is(err, ErrEncodeFailure):
		return "encode_failure"
	case errors.Is(err, ErrPublishPartial):
		return "publish_partial"
	case errors.Is(err, ErrOrchestratorQuery):
		return "orchestrator_query_failure"
	case errors.Is(err, ErrRegistryCorruption):
		return "registry_corruption"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	default:
		return errUnclassifiedFailure.Error()
	}
}

// Retryable reports whether an operation that failed with err may succeed on a
// later attempt. Only transient I/O and timeouts qualify.
func Retryable(err error) bool {
	return errors.Is(err, ErrTransientIO) || errors.Is(err, ErrTimeout)
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
