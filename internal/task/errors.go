package task

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/bornholm/uitester/internal/report"
)

var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrTaskNotFound   = errors.New("task not found")
	ErrNotRunning     = errors.New("task is not running")
	ErrUnexpected     = errors.New("unexpected error")
	ErrAlreadyExists  = errors.New("task already exists")
	ErrShuttingDown   = errors.New("launcher is shutting down")
)

// InvalidRequestError is returned by the launcher when a start request is
// rejected before any side effect.
type InvalidRequestError struct {
	Field   string
	Message string
	Cause   error
}

func (e *InvalidRequestError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrInvalidRequest, e.Field, e.Message)
}

func (e *InvalidRequestError) Unwrap() error {
	return e.Cause
}

func (e *InvalidRequestError) Is(target error) bool {
	return target == ErrInvalidRequest
}

func unexpectedReason(cause any) string {
	return report.Truncate(fmt.Sprintf("%s: %v", ErrUnexpected, cause), report.MaxMessageLength)
}
