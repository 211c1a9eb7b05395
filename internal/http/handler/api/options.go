package api

import (
	"log/slog"
)

type Options struct {
	Logger    *slog.Logger
	History   History
	Pinger    Pinger
	MountPath string
}

type OptionFunc func(opts *Options)

func NewOptions(funcs ...OptionFunc) *Options {
	opts := &Options{
		Logger:    slog.Default(),
		MountPath: "/api",
	}
	for _, fn := range funcs {
		fn(opts)
	}
	return opts
}

func WithLogger(logger *slog.Logger) OptionFunc {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

// WithHistory enables the history route and the status lookup of tasks
// which are no longer in memory.
func WithHistory(history History) OptionFunc {
	return func(opts *Options) {
		opts.History = history
	}
}

// WithPinger adds a dependency check to the health route.
func WithPinger(pinger Pinger) OptionFunc {
	return func(opts *Options) {
		opts.Pinger = pinger
	}
}

// WithMountPath sets the path the handler is mounted on, used to build
// the report urls.
func WithMountPath(path string) OptionFunc {
	return func(opts *Options) {
		opts.MountPath = path
	}
}
