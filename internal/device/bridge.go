package device

import (
	"bufio"
	"context"
	"strings"
	"time"

	"github.com/bornholm/uitester/internal/process"
	"github.com/pkg/errors"
)

const StateDevice = "device"

// Info is one line of the device bridge enumeration.
type Info struct {
	ID    string
	State string
}

// Bridge is the device bridge CLI as seen by the rest of the application.
type Bridge interface {
	Devices(ctx context.Context) ([]Info, error)
	State(ctx context.Context, deviceID string) (string, error)
	InitAgent(ctx context.Context, deviceID string) (*process.Result, error)
	AgentVersion(ctx context.Context, deviceID string) (string, error)
	Shell(ctx context.Context, deviceID string, args ...string) (string, error)
}

type ADB struct {
	executor     process.Executor
	path         string
	agentPath    string
	initCommand  []string
	initTimeout  time.Duration
	probeTimeout time.Duration
}

// Devices implements Bridge.
func (a *ADB) Devices(ctx context.Context) ([]Info, error) {
	result, err := a.run(ctx, a.probeTimeout, "devices")
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return parseDevices(result.Stdout), nil
}

// State implements Bridge.
func (a *ADB) State(ctx context.Context, deviceID string) (string, error) {
	result, err := a.run(ctx, a.probeTimeout, "-s", deviceID, "get-state")
	if err != nil {
		return "", errors.WithStack(err)
	}

	return strings.TrimSpace(result.Stdout), nil
}

// InitAgent implements Bridge.
func (a *ADB) InitAgent(ctx context.Context, deviceID string) (*process.Result, error) {
	command := process.Expand(a.initCommand, map[string]string{
		"device_id": deviceID,
		"adb":       a.path,
	})
	command.Timeout = a.initTimeout

	result, err := a.executor.Run(ctx, command)
	if err != nil {
		return result, errors.WithStack(err)
	}

	return result, nil
}

// AgentVersion implements Bridge.
func (a *ADB) AgentVersion(ctx context.Context, deviceID string) (string, error) {
	result, err := a.run(ctx, a.probeTimeout, "-s", deviceID, "shell", a.agentPath, "version")
	if err != nil {
		return "", errors.WithStack(err)
	}

	return strings.TrimSpace(result.Stdout), nil
}

// Shell implements Bridge.
func (a *ADB) Shell(ctx context.Context, deviceID string, args ...string) (string, error) {
	result, err := a.run(ctx, a.probeTimeout, append([]string{"-s", deviceID, "shell"}, args...)...)
	if err != nil {
		return "", errors.WithStack(err)
	}

	return result.Stdout, nil
}

// run executes an adb sub-command and turns non-zero exit codes into
// errors carrying stderr.
func (a *ADB) run(ctx context.Context, timeout time.Duration, args ...string) (*process.Result, error) {
	result, err := a.executor.Run(ctx, process.Command{
		Name:    a.path,
		Args:    args,
		Timeout: timeout,
	})
	if err != nil {
		return nil, errors.WithStack(err)
	}

	if result.ReturnCode != 0 {
		return nil, errors.Errorf("adb %s: exit code %d: %s", strings.Join(args, " "), result.ReturnCode, strings.TrimSpace(result.Stderr))
	}

	return result, nil
}

func parseDevices(output string) []Info {
	devices := make([]Info, 0)

	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "*") || strings.HasPrefix(line, "List of devices") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}

		devices = append(devices, Info{
			ID:    fields[0],
			State: fields[1],
		})
	}

	return devices
}

func NewADB(executor process.Executor, funcs ...ADBOptionFunc) *ADB {
	opts := NewADBOptions(funcs...)
	return &ADB{
		executor:     executor,
		path:         opts.Path,
		agentPath:    opts.AgentPath,
		initCommand:  opts.InitCommand,
		initTimeout:  opts.InitTimeout,
		probeTimeout: opts.ProbeTimeout,
	}
}

var _ Bridge = &ADB{}
