package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrTransient          = errors.New("transient failure")
	ErrPermanent          = errors.New("permanent failure")
	ErrTimeout            = errors.New("timeout")
	ErrPrecondition       = errors.New("precondition failed")
	ErrServiceUnavailable = errors.New("render service unavailable")
	ErrSessionUnavailable = errors.New("session store unavailable")
	ErrConfiguration      = errors.New("configuration error")
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Halts reports whether an error should abort a pipeline run instead of being
// collected into the failure list. Only an empty work plan and an unreachable
// collaborator qualify; everything else is a per-item failure.
func Halts(err error) bool {
	return errors.Is(err, ErrPrecondition) ||
		errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrSessionUnavailable)
}

// Retryable reports whether an error is worth another attempt.
func Retryable(err error) bool {
	return errors.Is(err, ErrTransient) || errors.Is(err, ErrTimeout)
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
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
