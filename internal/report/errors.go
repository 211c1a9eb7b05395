package report

import (
	"fmt"
	"unicode/utf8"

	"github.com/pkg/errors"
)

const MaxMessageLength = 500

var (
	ErrSuiteNotFound   = errors.New("suite not found")
	ErrSuitePermission = errors.New("suite is not readable")
)

// CompileError is returned when the report compiler fails or does not
// produce the report entry file.
type CompileError struct {
	ReturnCode int
	Stderr     string
	Reason     string
}

func (e *CompileError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("report compilation failed: %s", e.Reason)
	}

	return fmt.Sprintf("report compilation failed: %s: %s", e.Reason, e.Stderr)
}

// Truncate shortens s to at most max runes, marking the cut with an
// ellipsis.
func Truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}

	runes := []rune(s)

	return string(runes[:max]) + "..."
}
