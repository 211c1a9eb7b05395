package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/bornholm/uitester/internal/config"
	"github.com/bornholm/uitester/internal/setup"
	"github.com/bornholm/uitester/internal/slogx"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

var configFile string = ""

func init() {
	flag.StringVar(&configFile, "config", configFile, "configuration file, overrides "+config.EnvPrefix+"CONFIG")
}

func main() {
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		conf *config.Config
		err  error
	)

	if configFile != "" {
		conf, err = config.Load(configFile, false)
	} else {
		conf, err = config.Parse()
	}
	if err != nil {
		slog.ErrorContext(ctx, "could not parse config", slog.Any("error", errors.WithStack(err)))
		os.Exit(1)
	}

	logger := slog.New(slogx.ContextHandler{
		Handler: slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level:     conf.Logger.Level,
			AddSource: true,
		}),
	})

	slog.SetDefault(logger)

	slog.DebugContext(ctx, "using configuration", slog.Any("config", conf))

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.InfoContext(ctx, "use ctrl+c to interrupt")
		<-sig
		cancel()
	}()

	server, err := setup.NewHTTPServerFromConfig(ctx, conf)
	if err != nil {
		slog.ErrorContext(ctx, "could not setup http server", slogx.Error(errors.WithStack(err)))
		os.Exit(1)
	}

	launcher, err := setup.GetLauncherFromConfig(ctx, conf)
	if err != nil {
		slog.ErrorContext(ctx, "could not setup task launcher", slogx.Error(errors.WithStack(err)))
		os.Exit(1)
	}

	janitor, err := setup.NewJanitorFromConfig(ctx, conf)
	if err != nil {
		slog.ErrorContext(ctx, "could not setup task janitor", slogx.Error(errors.WithStack(err)))
		os.Exit(1)
	}

	group, groupCtx := errgroup.WithContext(ctx)

	if janitor != nil {
		group.Go(func() error {
			return janitor.Run(groupCtx)
		})
	}

	group.Go(func() error {
		slog.InfoContext(groupCtx, "starting server", slog.String("address", conf.HTTP.Address))
		return server.Run(groupCtx)
	})

	group.Go(func() error {
		<-groupCtx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(groupCtx), conf.HTTP.ShutdownTimeout)
		defer cancel()

		slog.InfoContext(groupCtx, "stopping running tasks")

		return launcher.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("could not run server", slogx.Error(errors.WithStack(err)))
		os.Exit(1)
	}
}
