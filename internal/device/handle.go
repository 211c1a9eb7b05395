package device

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
)

const keyEventWakeUp = "224"

// Handle is an automation session bound to one device. Handles are owned by
// the Cache and shared through leases.
type Handle struct {
	DeviceID      string
	SessionID     string
	AgentVersion  string
	InitializedAt time.Time

	initialized atomic.Bool
	bridge      Bridge
}

func (h *Handle) Initialized() bool {
	return h.initialized.Load()
}

func (h *Handle) Shell(ctx context.Context, args ...string) (string, error) {
	if !h.Initialized() {
		return "", errors.Errorf("device handle '%s' (session %s) is not initialized", h.DeviceID, h.SessionID)
	}

	output, err := h.bridge.Shell(ctx, h.DeviceID, args...)
	if err != nil {
		return "", errors.WithStack(err)
	}

	return output, nil
}

// ScreenOn wakes the device screen up.
func (h *Handle) ScreenOn(ctx context.Context) error {
	if _, err := h.Shell(ctx, "input", "keyevent", keyEventWakeUp); err != nil {
		return errors.WithStack(err)
	}

	return nil
}

func (h *Handle) invalidate() {
	h.initialized.Store(false)
}

// Lease is one holder's reference to a cached handle.
type Lease struct {
	handle  *Handle
	release func(*Handle)
	once    sync.Once
}

func (l *Lease) Handle() *Handle {
	return l.handle
}

// Release drops the lease reference. Subsequent calls are no-ops.
func (l *Lease) Release() {
	l.once.Do(func() {
		l.release(l.handle)
	})
}
