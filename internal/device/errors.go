package device

import (
	"fmt"

	"github.com/pkg/errors"
)

type Step string

const (
	StepConnectivity Step = "connectivity"
	StepAgentStart   Step = "agent_start"
	StepVersionCheck Step = "version_check"
)

// InitError is returned when a device bring-up fails. No handle is cached
// for the device when it is returned.
type InitError struct {
	DeviceID string
	Step     Step
	Attempts int
	Cause    error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("device '%s' initialization failed at %s step after %d attempt(s): %v", e.DeviceID, e.Step, e.Attempts, e.Cause)
}

func (e *InitError) Unwrap() error {
	return e.Cause
}

var (
	ErrEmptyDeviceID   = errors.New("empty device id")
	ErrDeviceOffline   = errors.New("device is not online")
	ErrVersionMismatch = errors.New("agent version mismatch")
)
