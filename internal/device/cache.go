package device

import (
	"context"
	"log/slog"
	"sync"

	"github.com/pkg/errors"
)

// Cache maps device ids to at most one initialized handle. Construction is
// serialized per device id; concurrent acquirers of the same device share
// the same handle. An entry is discarded when its last lease is released or
// when Release is called.
type Cache struct {
	builder Builder
	locks   *KeyedMutex
	logger  *slog.Logger

	mutex   sync.Mutex
	entries map[string]*entry
}

type entry struct {
	handle *Handle
	refs   int
}

func (c *Cache) Acquire(ctx context.Context, deviceID string) (*Lease, error) {
	if deviceID == "" {
		return nil, errors.WithStack(ErrEmptyDeviceID)
	}

	unlock, err := c.locks.Lock(ctx, deviceID)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer unlock()

	if handle := c.retain(deviceID); handle != nil {
		c.logger.DebugContext(ctx, "reusing cached device handle", slog.String("device_id", deviceID), slog.String("session_id", handle.SessionID))
		return c.newLease(handle), nil
	}

	handle, err := c.builder.Build(ctx, deviceID)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	if !handle.Initialized() {
		return nil, errors.Errorf("builder returned an uninitialized handle for device '%s'", deviceID)
	}

	c.mutex.Lock()
	if previous, exists := c.entries[deviceID]; exists {
		previous.handle.invalidate()
	}
	c.entries[deviceID] = &entry{handle: handle, refs: 1}
	cachedHandles.Set(float64(len(c.entries)))
	c.mutex.Unlock()

	return c.newLease(handle), nil
}

// Release discards the cached handle of the device, if any. Leases still
// referencing the discarded handle become no-ops.
func (c *Cache) Release(deviceID string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	e, exists := c.entries[deviceID]
	if !exists {
		return
	}

	e.handle.invalidate()
	delete(c.entries, deviceID)
	cachedHandles.Set(float64(len(c.entries)))

	c.logger.Debug("device handle released", slog.String("device_id", deviceID), slog.String("session_id", e.handle.SessionID))
}

// Lookup returns the cached handle of the device and its number of holders.
func (c *Cache) Lookup(deviceID string) (*Handle, int, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	e, exists := c.entries[deviceID]
	if !exists {
		return nil, 0, false
	}

	return e.handle, e.refs, true
}

func (c *Cache) retain(deviceID string) *Handle {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	e, exists := c.entries[deviceID]
	if !exists || !e.handle.Initialized() {
		return nil
	}

	e.refs++

	return e.handle
}

func (c *Cache) newLease(handle *Handle) *Lease {
	return &Lease{
		handle:  handle,
		release: c.releaseHandle,
	}
}

func (c *Cache) releaseHandle(handle *Handle) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	e, exists := c.entries[handle.DeviceID]
	if !exists || e.handle != handle {
		return
	}

	e.refs--
	if e.refs > 0 {
		return
	}

	handle.invalidate()
	delete(c.entries, handle.DeviceID)
	cachedHandles.Set(float64(len(c.entries)))

	c.logger.Debug("device handle discarded", slog.String("device_id", handle.DeviceID), slog.String("session_id", handle.SessionID))
}

func NewCache(builder Builder, logger *slog.Logger) *Cache {
	return &Cache{
		builder: builder,
		locks:   NewKeyedMutex(),
		logger:  logger.With("component", "device-cache"),
		entries: map[string]*entry{},
	}
}
