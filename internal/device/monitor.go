package device

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/bornholm/uitester/internal/slogx"
)

const (
	UnknownVersion      = "unknown"
	StateDisconnected   = "disconnected"
	defaultProbeWorkers = 4
)

// Status is the last known state of a device.
type Status struct {
	DeviceID     string    `json:"device_id"`
	State        string    `json:"status"`
	AgentVersion string    `json:"agent_version"`
	InUse        bool      `json:"in_use"`
	Holders      int       `json:"holders,omitempty"`
	SessionID    string    `json:"session_id,omitempty"`
	CheckedAt    time.Time `json:"checked_at"`
}

// Monitor enumerates devices through the bridge and keeps the last known
// status of every device it has seen.
type Monitor struct {
	bridge  Bridge
	cache   *Cache
	workers int
	logger  *slog.Logger

	mutex    sync.RWMutex
	statuses map[string]Status
}

// List returns the online devices, probing their agent version in
// parallel, and refreshes the status records.
func (m *Monitor) List(ctx context.Context) ([]Status, error) {
	infos, err := m.bridge.Devices(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	now := time.Now()

	online := make([]Status, 0, len(infos))
	others := make([]Status, 0)

	for _, info := range infos {
		status := Status{
			DeviceID:     info.ID,
			State:        info.State,
			AgentVersion: UnknownVersion,
			CheckedAt:    now,
		}

		if info.State == StateDevice {
			online = append(online, status)
		} else {
			others = append(others, status)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.workers)

	for i := range online {
		g.Go(func() error {
			version, err := m.bridge.AgentVersion(gctx, online[i].DeviceID)
			if err != nil {
				m.logger.DebugContext(ctx, "could not probe agent version", slog.String("device_id", online[i].DeviceID), slogx.Error(err))
				return nil
			}

			online[i].AgentVersion = version

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, errors.WithStack(err)
	}

	m.update(now, append(others, online...))

	for i := range online {
		m.decorate(&online[i])
	}

	sort.Slice(online, func(i, j int) bool {
		return online[i].DeviceID < online[j].DeviceID
	})

	return online, nil
}

// Status returns the last known status of the device.
func (m *Monitor) Status(deviceID string) (Status, bool) {
	m.mutex.RLock()
	status, exists := m.statuses[deviceID]
	m.mutex.RUnlock()

	if !exists {
		return Status{}, false
	}

	m.decorate(&status)

	return status, true
}

func (m *Monitor) update(now time.Time, seen []Status) {
	gone := m.record(now, seen)

	if m.cache == nil {
		return
	}

	// A device that left the bridge or went offline cannot be driven
	// through its cached handle anymore.
	for _, id := range gone {
		m.cache.Release(id)
	}
}

func (m *Monitor) record(now time.Time, seen []Status) []string {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	present := make(map[string]struct{}, len(seen))
	gone := make([]string, 0)

	for _, status := range seen {
		m.statuses[status.DeviceID] = status
		present[status.DeviceID] = struct{}{}

		if status.State != StateDevice {
			gone = append(gone, status.DeviceID)
		}
	}

	for id, status := range m.statuses {
		if _, ok := present[id]; ok {
			continue
		}

		status.State = StateDisconnected
		status.CheckedAt = now
		m.statuses[id] = status

		gone = append(gone, id)
	}

	return gone
}

func (m *Monitor) decorate(status *Status) {
	if m.cache == nil {
		return
	}

	handle, holders, exists := m.cache.Lookup(status.DeviceID)
	if !exists {
		return
	}

	status.InUse = holders > 0
	status.Holders = holders
	status.SessionID = handle.SessionID
}

func NewMonitor(bridge Bridge, cache *Cache, logger *slog.Logger) *Monitor {
	return &Monitor{
		bridge:   bridge,
		cache:    cache,
		workers:  defaultProbeWorkers,
		logger:   logger.With("component", "device-monitor"),
		statuses: map[string]Status{},
	}
}
