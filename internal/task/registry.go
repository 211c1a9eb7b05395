package task

import (
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// Registry indexes the records of the tasks started by this process.
type Registry struct {
	mutex   sync.RWMutex
	records map[string]*Record
}

func (r *Registry) Add(record *Record) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.records[record.id]; exists {
		return errors.Wrapf(ErrAlreadyExists, "task '%s'", record.id)
	}

	r.records[record.id] = record

	return nil
}

func (r *Registry) Get(taskID string) (*Record, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	record, exists := r.records[taskID]

	return record, exists
}

// List returns the snapshots of the records, oldest first. When states are
// given only records in one of those states are returned.
func (r *Registry) List(states ...State) []Snapshot {
	r.mutex.RLock()
	records := make([]*Record, 0, len(r.records))
	for _, record := range r.records {
		records = append(records, record)
	}
	r.mutex.RUnlock()

	snapshots := make([]Snapshot, 0, len(records))

	for _, record := range records {
		snapshot := record.Snapshot()

		if len(states) > 0 && !containsState(states, snapshot.State) {
			continue
		}

		snapshots = append(snapshots, snapshot)
	}

	sort.Slice(snapshots, func(i, j int) bool {
		if snapshots[i].CreateTime.Equal(snapshots[j].CreateTime) {
			return snapshots[i].TaskID < snapshots[j].TaskID
		}

		return snapshots[i].CreateTime.Before(snapshots[j].CreateTime)
	})

	return snapshots
}

// Evict removes the terminal records which ended before the given time and
// returns their ids.
func (r *Registry) Evict(before time.Time) []string {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	evicted := make([]string, 0)

	for id, record := range r.records {
		snapshot := record.Snapshot()

		if !snapshot.State.Terminal() || snapshot.EndTime == nil || !snapshot.EndTime.Before(before) {
			continue
		}

		delete(r.records, id)
		evicted = append(evicted, id)
	}

	sort.Strings(evicted)

	return evicted
}

func (r *Registry) Len() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	return len(r.records)
}

func containsState(states []State, state State) bool {
	for _, s := range states {
		if s == state {
			return true
		}
	}

	return false
}

func NewRegistry() *Registry {
	return &Registry{
		records: make(map[string]*Record),
	}
}
