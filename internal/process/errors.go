package process

import (
	"fmt"
	"time"
)

// TimeoutError is returned when a command exceeds its time budget. The
// process tree has been killed when it is returned.
type TimeoutError struct {
	Command string
	Timeout time.Duration
	Elapsed time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("process timeout after %s (limit %s): %s", e.Elapsed.Round(time.Millisecond), e.Timeout, e.Command)
}
