package setup

import (
	"context"
	"log/slog"
	"time"

	"github.com/bornholm/uitester/internal/config"
	"github.com/bornholm/uitester/internal/device"
	"github.com/bornholm/uitester/internal/process"
	"github.com/pkg/errors"
)

var getProcessRunnerFromConfig = createFromConfigOnce(func(ctx context.Context, conf *config.Config) (*process.Runner, error) {
	return process.NewRunner(
		process.WithLogger(slog.Default()),
		process.WithWaitDelay(5*time.Second),
	), nil
})

var getBridgeFromConfig = createFromConfigOnce(func(ctx context.Context, conf *config.Config) (*device.ADB, error) {
	runner, err := getProcessRunnerFromConfig(ctx, conf)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return device.NewADB(runner,
		device.WithADBPath(conf.Device.ADBPath),
		device.WithAgentPath(conf.Device.AgentPath),
		device.WithInitCommand(conf.Device.InitCommand, conf.Device.InitTimeout),
		device.WithProbeTimeout(conf.Device.ProbeTimeout),
	), nil
})

var getDeviceCacheFromConfig = createFromConfigOnce(func(ctx context.Context, conf *config.Config) (*device.Cache, error) {
	bridge, err := getBridgeFromConfig(ctx, conf)
	if err != nil {
		return nil, errors.Wrap(err, "could not configure device bridge")
	}

	bringUp, err := device.NewBringUp(bridge,
		device.WithBringUpLogger(slog.Default()),
		device.WithInitRetry(conf.Device.InitAttempts, conf.Device.InitBackoff),
		device.WithInitSuccessMarker(conf.Device.InitSuccessMarker),
		device.WithVersionCheck(conf.Device.VersionConstraint, conf.Device.VersionAttempts, conf.Device.VersionBackoff),
	)
	if err != nil {
		return nil, errors.Wrap(err, "could not configure device bring-up")
	}

	return device.NewCache(bringUp, slog.Default()), nil
})

var getDeviceMonitorFromConfig = createFromConfigOnce(func(ctx context.Context, conf *config.Config) (*device.Monitor, error) {
	bridge, err := getBridgeFromConfig(ctx, conf)
	if err != nil {
		return nil, errors.Wrap(err, "could not configure device bridge")
	}

	cache, err := getDeviceCacheFromConfig(ctx, conf)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return device.NewMonitor(bridge, cache, slog.Default()), nil
})
