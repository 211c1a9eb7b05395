package task

import (
	"sync"
	"time"

	"github.com/bornholm/uitester/internal/suite"
)

// Record is the live state of one task. Identity fields are immutable;
// the mutable fields are guarded by the record mutex and read through
// snapshots.
type Record struct {
	id       string
	deviceID string
	suite    suite.Suite
	created  time.Time

	mutex      sync.RWMutex
	state      State
	reason     string
	startTime  *time.Time
	endTime    *time.Time
	reportPath string
	archive    string
	logPath    string
	errorMsg   string
	returnCode *int
}

func (r *Record) ID() string {
	return r.id
}

func (r *Record) DeviceID() string {
	return r.deviceID
}

func (r *Record) State() State {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	return r.state
}

// start moves a pending record to running.
func (r *Record) start(at time.Time) bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.state != StatePending {
		return false
	}

	r.state = StateRunning
	r.startTime = &at

	return true
}

// stop moves a running record to stopped.
func (r *Record) stop(at time.Time) (State, bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.state != StateRunning {
		return r.state, false
	}

	r.state = StateStopped
	r.endTime = &at

	return r.state, true
}

type outcome struct {
	State      State
	Reason     string
	ReportPath string
	Archive    string
	LogPath    string
	ReturnCode *int
}

// finish records the terminal state of the task. A record already in a
// terminal state keeps it; only missing artifact paths are attached.
func (r *Record) finish(o outcome, at time.Time) bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.reportPath == "" {
		r.reportPath = o.ReportPath
	}

	if r.archive == "" {
		r.archive = o.Archive
	}

	if r.logPath == "" {
		r.logPath = o.LogPath
	}

	if r.returnCode == nil {
		r.returnCode = o.ReturnCode
	}

	if r.state.Terminal() {
		return false
	}

	r.state = o.State
	if o.State == StateFailed {
		r.reason = o.Reason
		r.errorMsg = o.Reason
	}

	if r.startTime == nil {
		r.startTime = &at
	}

	r.endTime = &at

	return true
}

func (r *Record) Snapshot() Snapshot {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	status := string(r.state)
	if r.state == StateFailed && r.reason != "" {
		status = string(StateFailed) + ": " + r.reason
	}

	return Snapshot{
		TaskID:      r.id,
		DeviceID:    r.deviceID,
		Suite:       r.suite,
		Status:      status,
		State:       r.state,
		CreateTime:  r.created,
		StartTime:   copyTime(r.startTime),
		EndTime:     copyTime(r.endTime),
		ReportPath:  r.reportPath,
		ArchivePath: r.archive,
		LogPath:     r.logPath,
		ErrorMsg:    r.errorMsg,
		ReturnCode:  copyInt(r.returnCode),
	}
}

// Snapshot is a point in time copy of a task record.
type Snapshot struct {
	TaskID      string      `json:"task_id"`
	DeviceID    string      `json:"device_id"`
	Suite       suite.Suite `json:"suite_info"`
	Status      string      `json:"status"`
	State       State       `json:"state"`
	CreateTime  time.Time   `json:"create_time"`
	StartTime   *time.Time  `json:"start_time,omitempty"`
	EndTime     *time.Time  `json:"end_time,omitempty"`
	ReportPath  string      `json:"report_path,omitempty"`
	ArchivePath string      `json:"archive_path,omitempty"`
	LogPath     string      `json:"log_path,omitempty"`
	ErrorMsg    string      `json:"error_msg,omitempty"`
	ReturnCode  *int        `json:"return_code,omitempty"`
}

func newRecord(id, deviceID string, s suite.Suite, created time.Time) *Record {
	return &Record{
		id:       id,
		deviceID: deviceID,
		suite:    s,
		created:  created,
		state:    StatePending,
	}
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}

	c := *t

	return &c
}

func copyInt(i *int) *int {
	if i == nil {
		return nil
	}

	c := *i

	return &c
}
