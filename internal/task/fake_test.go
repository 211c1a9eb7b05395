package task

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/bornholm/uitester/internal/device"
	"github.com/bornholm/uitester/internal/process"
	"github.com/bornholm/uitester/internal/report"
	"github.com/bornholm/uitester/internal/slogx"
	"github.com/bornholm/uitester/internal/suite"
)

type fakeSuites struct {
	suites []suite.Suite
}

func (s *fakeSuites) Resolve(id int) (suite.Suite, error) {
	if id < 0 || id >= len(s.suites) {
		return suite.Suite{}, errors.Wrapf(suite.ErrNotFound, "suite %d", id)
	}

	return s.suites[id], nil
}

func newFakeSuites() *fakeSuites {
	return &fakeSuites{
		suites: []suite.Suite{
			{ID: 0, Name: "login.py", AbsPath: "/suites/login.py", RelPath: "login.py"},
			{ID: 1, Name: "pay.py", AbsPath: "/suites/wallet/pay.py", RelPath: "wallet/pay.py"},
		},
	}
}

// fakeBridge simulates online devices. Devices listed in offline fail the
// connectivity check.
type fakeBridge struct {
	mutex   sync.Mutex
	offline map[string]bool
	shells  []string
}

func (b *fakeBridge) Devices(ctx context.Context) ([]device.Info, error) {
	return nil, nil
}

func (b *fakeBridge) State(ctx context.Context, deviceID string) (string, error) {
	if b.offline[deviceID] {
		return "offline", nil
	}

	return device.StateDevice, nil
}

func (b *fakeBridge) InitAgent(ctx context.Context, deviceID string) (*process.Result, error) {
	return &process.Result{Stdout: "Successfully init"}, nil
}

func (b *fakeBridge) AgentVersion(ctx context.Context, deviceID string) (string, error) {
	return "0.10.0", nil
}

func (b *fakeBridge) Shell(ctx context.Context, deviceID string, args ...string) (string, error) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.shells = append(b.shells, deviceID+": "+strings.Join(args, " "))

	return "", nil
}

func (b *fakeBridge) Shells() []string {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	return append([]string{}, b.shells...)
}

func newTestCache(t *testing.T, bridge *fakeBridge) *device.Cache {
	logger := slogx.NewTestLogger(t)

	bringUp, err := device.NewBringUp(bridge,
		device.WithBringUpLogger(logger),
		device.WithInitRetry(1, time.Millisecond),
		device.WithInitSuccessMarker("Successfully init"),
		device.WithVersionCheck(">= 0.9.0", 1, time.Millisecond),
	)
	if err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}

	return device.NewCache(bringUp, logger)
}

type pipelineFunc func(ctx context.Context, req report.Request) (*report.Result, error)

// fakePipeline records the runs and the maximum number of concurrent runs
// per device.
type fakePipeline struct {
	mutex     sync.Mutex
	fn        pipelineFunc
	runs      []report.Request
	active    map[string]int
	maxActive map[string]int
}

func (p *fakePipeline) Run(ctx context.Context, req report.Request) (*report.Result, error) {
	p.mutex.Lock()
	p.runs = append(p.runs, req)
	p.active[req.DeviceID]++
	if p.active[req.DeviceID] > p.maxActive[req.DeviceID] {
		p.maxActive[req.DeviceID] = p.active[req.DeviceID]
	}
	p.mutex.Unlock()

	defer func() {
		p.mutex.Lock()
		p.active[req.DeviceID]--
		p.mutex.Unlock()
	}()

	return p.fn(ctx, req)
}

func (p *fakePipeline) Runs() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	return len(p.runs)
}

func (p *fakePipeline) MaxActive(deviceID string) int {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	return p.maxActive[deviceID]
}

func newFakePipeline(fn pipelineFunc) *fakePipeline {
	return &fakePipeline{
		fn:        fn,
		active:    map[string]int{},
		maxActive: map[string]int{},
	}
}

func succeed(status report.Outcome, reason string) pipelineFunc {
	return func(ctx context.Context, req report.Request) (*report.Result, error) {
		returnCode := 0
		if status == report.OutcomeSuccessWithFailure {
			returnCode = 1
		}

		result := &report.Result{
			Status:     status,
			Reason:     reason,
			ReturnCode: &returnCode,
			LogPath:    "/reports/" + req.TaskID + "/task.log",
		}

		if status != report.OutcomeFailed {
			result.ReportPath = "/reports/" + req.TaskID + "/compiled_report"
		}

		return result, nil
	}
}

type memoryHistory struct {
	mutex     sync.Mutex
	snapshots []Snapshot
}

func (h *memoryHistory) Record(ctx context.Context, snapshot Snapshot) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.snapshots = append(h.snapshots, snapshot)

	return nil
}

func (h *memoryHistory) Snapshots() []Snapshot {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	return append([]Snapshot{}, h.snapshots...)
}

func waitForState(t *testing.T, launcher *Launcher, taskID string, state State) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)

	for time.Now().Before(deadline) {
		record, exists := launcher.Registry().Get(taskID)
		if exists && record.State() == state {
			return
		}

		time.Sleep(5 * time.Millisecond)
	}

	t.Fatalf("task '%s' did not reach state '%s'", taskID, state)
}
