package task

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/goleak"

	"github.com/bornholm/uitester/internal/report"
	"github.com/bornholm/uitester/internal/slogx"
	"github.com/bornholm/uitester/internal/suite"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestLauncher(t *testing.T, bridge *fakeBridge, pipeline *fakePipeline, funcs ...OptionFunc) *Launcher {
	funcs = append([]OptionFunc{WithLogger(slogx.NewTestLogger(t))}, funcs...)

	launcher := NewLauncher(newFakeSuites(), newTestCache(t, bridge), pipeline, funcs...)

	t.Cleanup(launcher.Wait)

	return launcher
}

func TestLauncherStartValidation(t *testing.T) {
	pipeline := newFakePipeline(succeed(report.OutcomeSuccess, ""))
	launcher := newTestLauncher(t, &fakeBridge{}, pipeline)

	type testCase struct {
		Name             string
		DeviceID         string
		SuiteID          int
		ExpectSuiteError bool
	}

	testCases := []testCase{
		{Name: "Empty device id", DeviceID: "", SuiteID: 0},
		{Name: "Negative suite id", DeviceID: "emulator-5554", SuiteID: -1, ExpectSuiteError: true},
		{Name: "Suite id out of range", DeviceID: "emulator-5554", SuiteID: 2, ExpectSuiteError: true},
	}

	for _, tc := range testCases {
		t.Run(tc.Name, func(t *testing.T) {
			taskID, err := launcher.Start(context.Background(), tc.DeviceID, tc.SuiteID)
			if err == nil {
				t.Fatalf("expected an error, got task '%s'", taskID)
			}

			if !errors.Is(err, ErrInvalidRequest) {
				t.Errorf("expected ErrInvalidRequest, got %+v", err)
			}

			if got := errors.Is(err, suite.ErrNotFound); got != tc.ExpectSuiteError {
				t.Errorf("suite not found: expected %v, got %v", tc.ExpectSuiteError, got)
			}
		})
	}

	if got := launcher.Registry().Len(); got != 0 {
		t.Errorf("rejected requests should not register tasks, got %d", got)
	}

	if got := pipeline.Runs(); got != 0 {
		t.Errorf("rejected requests should not run the pipeline, got %d runs", got)
	}
}

func TestLauncherLifecycle(t *testing.T) {
	gate := make(chan struct{})

	pipeline := newFakePipeline(func(ctx context.Context, req report.Request) (*report.Result, error) {
		<-gate
		return succeed(report.OutcomeSuccess, "")(ctx, req)
	})

	history := &memoryHistory{}
	launcher := newTestLauncher(t, &fakeBridge{}, pipeline, WithHistory(history))

	taskID, err := launcher.Start(context.Background(), "emulator-5554", 1)
	if err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}

	if !ValidID(taskID) {
		t.Errorf("unexpected task id format '%s'", taskID)
	}

	record, exists := launcher.Registry().Get(taskID)
	if !exists {
		t.Fatalf("task should be registered as soon as Start returns")
	}

	if state := record.State(); state != StatePending && state != StateRunning {
		t.Errorf("state: expected pending or running, got '%s'", state)
	}

	waitForState(t, launcher, taskID, StateRunning)

	running := launcher.Registry().List(StateRunning)
	if len(running) != 1 || running[0].TaskID != taskID {
		t.Errorf("running tasks: expected ['%s'], got %+v", taskID, running)
	}

	close(gate)
	launcher.Wait()

	snapshot := record.Snapshot()

	if snapshot.State != StateSuccess || snapshot.Status != string(StateSuccess) {
		t.Errorf("status: expected success, got '%s' (%s)", snapshot.Status, snapshot.State)
	}

	if snapshot.Suite.RelPath != "wallet/pay.py" {
		t.Errorf("suite: expected 'wallet/pay.py', got '%s'", snapshot.Suite.RelPath)
	}

	if snapshot.StartTime == nil || snapshot.EndTime == nil {
		t.Fatalf("start and end times should be set")
	}

	if snapshot.EndTime.Before(*snapshot.StartTime) || snapshot.StartTime.Before(snapshot.CreateTime) {
		t.Errorf("times should be ordered: %s <= %s <= %s", snapshot.CreateTime, snapshot.StartTime, snapshot.EndTime)
	}

	if snapshot.ReportPath == "" || snapshot.LogPath == "" {
		t.Errorf("report and log paths should be set, got %+v", snapshot)
	}

	if snapshot.ErrorMsg != "" {
		t.Errorf("error message should be empty, got '%s'", snapshot.ErrorMsg)
	}

	recorded := history.Snapshots()
	if len(recorded) != 1 || recorded[0].TaskID != taskID || recorded[0].State != StateSuccess {
		t.Errorf("history: expected the terminal snapshot, got %+v", recorded)
	}
}

func TestLauncherOutcomes(t *testing.T) {
	type testCase struct {
		Name           string
		Pipeline       pipelineFunc
		ExpectedState  State
		ExpectedStatus string
	}

	testCases := []testCase{
		{
			Name:           "Success",
			Pipeline:       succeed(report.OutcomeSuccess, ""),
			ExpectedState:  StateSuccess,
			ExpectedStatus: "success",
		},
		{
			Name:           "Test failures",
			Pipeline:       succeed(report.OutcomeSuccessWithFailure, ""),
			ExpectedState:  StateSuccessWithFailure,
			ExpectedStatus: "success_with_failure",
		},
		{
			Name:           "Compile failure",
			Pipeline:       succeed(report.OutcomeFailed, "report compilation failed: exit code 2"),
			ExpectedState:  StateFailed,
			ExpectedStatus: "failed: report compilation failed: exit code 2",
		},
		{
			Name: "Pipeline error",
			Pipeline: func(ctx context.Context, req report.Request) (*report.Result, error) {
				return &report.Result{Status: report.OutcomeFailed, Reason: "suite execution timeout after 1s (limit 1s)"}, errors.New("timeout")
			},
			ExpectedState:  StateFailed,
			ExpectedStatus: "failed: suite execution timeout after 1s (limit 1s)",
		},
		{
			Name: "Pipeline panic",
			Pipeline: func(ctx context.Context, req report.Request) (*report.Result, error) {
				panic("boom")
			},
			ExpectedState:  StateFailed,
			ExpectedStatus: "failed: unexpected error: boom",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.Name, func(t *testing.T) {
			bridge := &fakeBridge{}
			launcher := NewLauncher(newFakeSuites(), newTestCache(t, bridge), newFakePipeline(tc.Pipeline), WithLogger(slogx.NewTestLogger(t)))

			taskID, err := launcher.Start(context.Background(), "emulator-5554", 0)
			if err != nil {
				t.Fatalf("%+v", errors.WithStack(err))
			}

			launcher.Wait()

			record, _ := launcher.Registry().Get(taskID)
			snapshot := record.Snapshot()

			if snapshot.State != tc.ExpectedState {
				t.Errorf("state: expected '%s', got '%s'", tc.ExpectedState, snapshot.State)
			}

			if snapshot.Status != tc.ExpectedStatus {
				t.Errorf("status: expected '%s', got '%s'", tc.ExpectedStatus, snapshot.Status)
			}

			if tc.ExpectedState == StateFailed && snapshot.ErrorMsg == "" {
				t.Errorf("failed task should carry an error message")
			}

			if snapshot.EndTime == nil {
				t.Errorf("end time should be set")
			}
		})
	}
}

func TestLauncherReleasesDevice(t *testing.T) {
	bridge := &fakeBridge{}
	cache := newTestCache(t, bridge)

	pipeline := newFakePipeline(func(ctx context.Context, req report.Request) (*report.Result, error) {
		panic("boom")
	})

	launcher := NewLauncher(newFakeSuites(), cache, pipeline, WithLogger(slogx.NewTestLogger(t)))

	if _, err := launcher.Start(context.Background(), "emulator-5554", 0); err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}

	launcher.Wait()

	if _, holders, exists := cache.Lookup("emulator-5554"); exists {
		t.Errorf("device handle should be released, still %d holder(s)", holders)
	}
}

func TestLauncherDeviceInitFailure(t *testing.T) {
	bridge := &fakeBridge{offline: map[string]bool{"emulator-5556": true}}
	pipeline := newFakePipeline(succeed(report.OutcomeSuccess, ""))
	history := &memoryHistory{}

	launcher := newTestLauncher(t, bridge, pipeline, WithHistory(history))

	taskID, err := launcher.Start(context.Background(), "emulator-5556", 0)
	if err != nil {
		t.Fatalf("start should succeed before the device is contacted: %+v", err)
	}

	launcher.Wait()

	record, _ := launcher.Registry().Get(taskID)
	snapshot := record.Snapshot()

	if snapshot.State != StateFailed {
		t.Fatalf("state: expected failed, got '%s'", snapshot.State)
	}

	if !strings.Contains(snapshot.Status, "connectivity") {
		t.Errorf("status should name the failed bring-up step, got '%s'", snapshot.Status)
	}

	if pipeline.Runs() != 0 {
		t.Errorf("pipeline should not run when the device cannot be acquired")
	}

	if snapshot.StartTime == nil || snapshot.EndTime == nil {
		t.Errorf("start and end times should be set")
	}

	if len(history.Snapshots()) != 1 {
		t.Errorf("failed task should be recorded in history")
	}
}

func TestLauncherWakeScreen(t *testing.T) {
	bridge := &fakeBridge{}
	pipeline := newFakePipeline(succeed(report.OutcomeSuccess, ""))

	launcher := newTestLauncher(t, bridge, pipeline, WithWakeScreen(true))

	if _, err := launcher.Start(context.Background(), "emulator-5554", 0); err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}

	launcher.Wait()

	shells := bridge.Shells()
	if len(shells) != 1 || shells[0] != "emulator-5554: input keyevent 224" {
		t.Errorf("expected one wake up key event, got %v", shells)
	}
}

func TestLauncherStop(t *testing.T) {
	pipeline := newFakePipeline(func(ctx context.Context, req report.Request) (*report.Result, error) {
		<-ctx.Done()
		return &report.Result{Status: report.OutcomeFailed, Reason: "task canceled", LogPath: "/reports/" + req.TaskID + "/task.log"}, errors.WithStack(ctx.Err())
	})

	launcher := newTestLauncher(t, &fakeBridge{}, pipeline)

	taskID, err := launcher.Start(context.Background(), "emulator-5554", 0)
	if err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}

	waitForState(t, launcher, taskID, StateRunning)

	if err := launcher.Stop(context.Background(), taskID); err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}

	launcher.Wait()

	record, _ := launcher.Registry().Get(taskID)
	snapshot := record.Snapshot()

	if snapshot.State != StateStopped || snapshot.Status != string(StateStopped) {
		t.Errorf("status: expected stopped, got '%s'", snapshot.Status)
	}

	if snapshot.LogPath == "" {
		t.Errorf("log path should be attached to the stopped task")
	}

	if err := launcher.Stop(context.Background(), taskID); !errors.Is(err, ErrNotRunning) {
		t.Errorf("stopping a terminated task: expected ErrNotRunning, got %+v", err)
	}

	if err := launcher.Stop(context.Background(), "20240520143000_ffff"); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("stopping an unknown task: expected ErrTaskNotFound, got %+v", err)
	}
}

func TestLauncherStopWhileWaitingForDevice(t *testing.T) {
	gate := make(chan struct{})

	pipeline := newFakePipeline(func(ctx context.Context, req report.Request) (*report.Result, error) {
		<-gate
		return succeed(report.OutcomeSuccess, "")(ctx, req)
	})

	launcher := newTestLauncher(t, &fakeBridge{}, pipeline)

	first, err := launcher.Start(context.Background(), "emulator-5554", 0)
	if err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}

	waitForState(t, launcher, first, StateRunning)

	second, err := launcher.Start(context.Background(), "emulator-5554", 1)
	if err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}

	waitForState(t, launcher, second, StateRunning)

	if err := launcher.Stop(context.Background(), second); err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}

	close(gate)
	launcher.Wait()

	if got := pipeline.Runs(); got != 1 {
		t.Errorf("stopped waiting task should not run the pipeline, got %d runs", got)
	}

	firstRecord, _ := launcher.Registry().Get(first)
	if state := firstRecord.State(); state != StateSuccess {
		t.Errorf("first task: expected success, got '%s'", state)
	}

	secondRecord, _ := launcher.Registry().Get(second)
	if state := secondRecord.State(); state != StateStopped {
		t.Errorf("second task: expected stopped, got '%s'", state)
	}
}

func TestLauncherSerializesDevice(t *testing.T) {
	pipeline := newFakePipeline(func(ctx context.Context, req report.Request) (*report.Result, error) {
		time.Sleep(30 * time.Millisecond)
		return succeed(report.OutcomeSuccess, "")(ctx, req)
	})

	launcher := newTestLauncher(t, &fakeBridge{}, pipeline)

	for i := 0; i < 4; i++ {
		if _, err := launcher.Start(context.Background(), "emulator-5554", i%2); err != nil {
			t.Fatalf("%+v", errors.WithStack(err))
		}

		if _, err := launcher.Start(context.Background(), "emulator-5556", i%2); err != nil {
			t.Fatalf("%+v", errors.WithStack(err))
		}
	}

	launcher.Wait()

	if got := pipeline.Runs(); got != 8 {
		t.Errorf("expected 8 runs, got %d", got)
	}

	for _, deviceID := range []string{"emulator-5554", "emulator-5556"} {
		if got := pipeline.MaxActive(deviceID); got != 1 {
			t.Errorf("device '%s': expected at most 1 concurrent run, got %d", deviceID, got)
		}
	}

	if got := len(launcher.Registry().List(StateSuccess)); got != 8 {
		t.Errorf("expected 8 successful tasks, got %d", got)
	}
}

func TestLauncherShutdown(t *testing.T) {
	pipeline := newFakePipeline(func(ctx context.Context, req report.Request) (*report.Result, error) {
		<-ctx.Done()
		return &report.Result{Status: report.OutcomeFailed, Reason: "task canceled"}, errors.WithStack(ctx.Err())
	})

	launcher := newTestLauncher(t, &fakeBridge{}, pipeline)

	taskID, err := launcher.Start(context.Background(), "emulator-5554", 0)
	if err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}

	waitForState(t, launcher, taskID, StateRunning)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := launcher.Shutdown(ctx); err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}

	record, _ := launcher.Registry().Get(taskID)
	if status := record.Snapshot().Status; status != "failed: task canceled" {
		t.Errorf("status: expected 'failed: task canceled', got '%s'", status)
	}

	if _, err := launcher.Start(context.Background(), "emulator-5554", 0); !errors.Is(err, ErrShuttingDown) {
		t.Errorf("start after shutdown: expected ErrShuttingDown, got %v", err)
	}
}

func TestLauncherStartDuringShutdown(t *testing.T) {
	pipeline := newFakePipeline(func(ctx context.Context, req report.Request) (*report.Result, error) {
		<-ctx.Done()
		return &report.Result{Status: report.OutcomeFailed, Reason: "task canceled"}, errors.WithStack(ctx.Err())
	})

	launcher := newTestLauncher(t, &fakeBridge{}, pipeline)

	const starters = 16

	var (
		wg      sync.WaitGroup
		mutex   sync.Mutex
		started []string
	)

	for i := 0; i < starters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			taskID, err := launcher.Start(context.Background(), "emulator-5554", 0)
			if err != nil {
				if !errors.Is(err, ErrShuttingDown) {
					t.Errorf("unexpected start error: %+v", err)
				}
				return
			}

			mutex.Lock()
			started = append(started, taskID)
			mutex.Unlock()
		}()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := launcher.Shutdown(ctx); err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}

	wg.Wait()

	for _, taskID := range started {
		record, exists := launcher.Registry().Get(taskID)
		if !exists {
			t.Errorf("task '%s' missing from registry", taskID)
			continue
		}

		if state := record.Snapshot().State; !state.Terminal() {
			t.Errorf("task '%s': expected a terminal state, got '%s'", taskID, state)
		}
	}
}
