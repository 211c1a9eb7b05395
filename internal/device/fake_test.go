package device

import (
	"context"
	"sync"

	"github.com/bornholm/uitester/internal/process"
	"github.com/pkg/errors"
)

type fakeBridge struct {
	mutex sync.Mutex

	devices  []Info
	states   map[string]string
	versions map[string][]string

	// initOutputs is consumed one entry per InitAgent call, the last entry
	// being repeated.
	initOutputs []*process.Result

	stateCalls   int
	initCalls    int
	versionCalls int
	shellCalls   [][]string
}

func (b *fakeBridge) Devices(ctx context.Context) ([]Info, error) {
	return b.devices, nil
}

func (b *fakeBridge) State(ctx context.Context, deviceID string) (string, error) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.stateCalls++

	state, exists := b.states[deviceID]
	if !exists {
		return "", errors.Errorf("device '%s' not found", deviceID)
	}

	return state, nil
}

func (b *fakeBridge) InitAgent(ctx context.Context, deviceID string) (*process.Result, error) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.initCalls++

	if len(b.initOutputs) == 0 {
		return &process.Result{Stdout: "Successfully init AdbDevice(serial=" + deviceID + ")"}, nil
	}

	idx := min(b.initCalls, len(b.initOutputs)) - 1

	return b.initOutputs[idx], nil
}

func (b *fakeBridge) AgentVersion(ctx context.Context, deviceID string) (string, error) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.versionCalls++

	versions, exists := b.versions[deviceID]
	if !exists || len(versions) == 0 {
		return "", errors.Errorf("no agent on '%s'", deviceID)
	}

	idx := min(b.versionCalls, len(versions)) - 1

	return versions[idx], nil
}

func (b *fakeBridge) Shell(ctx context.Context, deviceID string, args ...string) (string, error) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.shellCalls = append(b.shellCalls, args)

	return "", nil
}

func newFakeBridge(deviceIDs ...string) *fakeBridge {
	bridge := &fakeBridge{
		states:   map[string]string{},
		versions: map[string][]string{},
	}

	for _, id := range deviceIDs {
		bridge.devices = append(bridge.devices, Info{ID: id, State: StateDevice})
		bridge.states[id] = StateDevice
		bridge.versions[id] = []string{"0.10.0"}
	}

	return bridge
}

var _ Bridge = &fakeBridge{}

type fakeExecutor struct {
	mutex    sync.Mutex
	commands []process.Command
	results  map[string]*process.Result
}

func (e *fakeExecutor) Run(ctx context.Context, command process.Command) (*process.Result, error) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	e.commands = append(e.commands, command)

	result, exists := e.results[command.String()]
	if !exists {
		return &process.Result{ReturnCode: 1, Stderr: "unexpected command"}, nil
	}

	return result, nil
}

var _ process.Executor = &fakeExecutor{}
