package setup

import (
	"context"
	"log/slog"

	"github.com/bornholm/uitester/internal/config"
	"github.com/bornholm/uitester/internal/http"
	"github.com/bornholm/uitester/internal/http/handler/api"
	"github.com/bornholm/uitester/internal/http/handler/metrics"
	"github.com/bornholm/uitester/internal/http/pprof"
	"github.com/pkg/errors"
)

const apiMountPath = "/api"

func NewHTTPServerFromConfig(ctx context.Context, conf *config.Config) (*http.Server, error) {
	monitor, err := getDeviceMonitorFromConfig(ctx, conf)
	if err != nil {
		return nil, errors.Wrap(err, "could not configure device monitor")
	}

	catalog, err := getSuiteCatalogFromConfig(ctx, conf)
	if err != nil {
		return nil, errors.Wrap(err, "could not configure suite catalog")
	}

	launcher, err := getLauncherFromConfig(ctx, conf)
	if err != nil {
		return nil, errors.Wrap(err, "could not configure task launcher")
	}

	workspace, err := getWorkspaceFromConfig(ctx, conf)
	if err != nil {
		return nil, errors.Wrap(err, "could not configure report workspace")
	}

	store, err := getStoreFromConfig(ctx, conf)
	if err != nil {
		return nil, errors.Wrap(err, "could not configure store")
	}

	history, err := getRunRepositoryFromConfig(ctx, conf)
	if err != nil {
		return nil, errors.Wrap(err, "could not configure task history")
	}

	apiHandler := api.NewHandler(monitor, catalog, launcher, workspace,
		api.WithLogger(slog.Default()),
		api.WithHistory(history),
		api.WithPinger(store),
		api.WithMountPath(apiMountPath),
	)

	options := []http.OptionFunc{
		http.WithAddress(conf.HTTP.Address),
		http.WithBaseURL(conf.HTTP.BaseURL),
		http.WithLogger(slog.Default()),
		http.WithShutdownTimeout(conf.HTTP.ShutdownTimeout),
		http.WithQuietPaths(apiMountPath+"/health", apiMountPath+"/test/status/", "/metrics/"),
		http.WithMount(apiMountPath+"/", apiHandler),
	}

	if conf.HTTP.Metrics {
		options = append(options, http.WithMount("/metrics/", metrics.NewHandler(nil)))
	}

	if conf.HTTP.Pprof {
		options = append(options, http.WithMount("/debug/pprof/", pprof.NewHandler()))
	}

	return http.NewServer(options...), nil
}
