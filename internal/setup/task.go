package setup

import (
	"context"
	"log/slog"

	"github.com/bornholm/uitester/internal/config"
	"github.com/bornholm/uitester/internal/slogx"
	"github.com/bornholm/uitester/internal/task"
	"github.com/pkg/errors"
)

var getLauncherFromConfig = createFromConfigOnce(func(ctx context.Context, conf *config.Config) (*task.Launcher, error) {
	catalog, err := getSuiteCatalogFromConfig(ctx, conf)
	if err != nil {
		return nil, errors.Wrap(err, "could not configure suite catalog")
	}

	cache, err := getDeviceCacheFromConfig(ctx, conf)
	if err != nil {
		return nil, errors.Wrap(err, "could not configure device cache")
	}

	pipeline, err := getReportPipelineFromConfig(ctx, conf)
	if err != nil {
		return nil, errors.Wrap(err, "could not configure report pipeline")
	}

	history, err := getRunRepositoryFromConfig(ctx, conf)
	if err != nil {
		return nil, errors.Wrap(err, "could not configure task history")
	}

	if err := ensureDirectory(conf.Path.LogRootDir); err != nil {
		return nil, errors.WithStack(err)
	}

	launcher := task.NewLauncher(catalog, cache, pipeline,
		task.WithLogger(slog.Default()),
		task.WithHistory(history),
		task.WithTaskLogs(slogx.NewTaskLogs(conf.Path.LogRootDir, conf.Logger.Level)),
		task.WithWakeScreen(conf.Device.WakeScreen),
	)

	return launcher, nil
})

// GetLauncherFromConfig returns the shared task launcher.
func GetLauncherFromConfig(ctx context.Context, conf *config.Config) (*task.Launcher, error) {
	return getLauncherFromConfig(ctx, conf)
}

// NewJanitorFromConfig returns the janitor evicting the terminated tasks of
// the shared launcher, nil when no retention is configured.
func NewJanitorFromConfig(ctx context.Context, conf *config.Config) (*task.Janitor, error) {
	if conf.Task.Retention <= 0 {
		return nil, nil
	}

	launcher, err := getLauncherFromConfig(ctx, conf)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	var funcs []task.JanitorOptionFunc

	if conf.Task.PurgeArtifacts {
		workspace, err := getWorkspaceFromConfig(ctx, conf)
		if err != nil {
			return nil, errors.Wrap(err, "could not configure report workspace")
		}

		funcs = append(funcs, task.WithArtifactPurger(workspace))
	}

	return task.NewJanitor(launcher.Registry(), conf.Task.Retention, conf.Task.JanitorSchedule, slog.Default(), funcs...), nil
}
