package task

import (
	"log/slog"
	"time"

	"github.com/bornholm/uitester/internal/slogx"
)

type Options struct {
	Logger     *slog.Logger
	History    History
	TaskLogs   *slogx.TaskLogs
	WakeScreen bool
	Now        func() time.Time
}

type OptionFunc func(opts *Options)

func NewOptions(funcs ...OptionFunc) *Options {
	opts := &Options{
		Logger: slog.Default(),
		Now:    time.Now,
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

// WithHistory persists the snapshot of every task reaching a terminal
// state.
func WithHistory(history History) OptionFunc {
	return func(opts *Options) {
		opts.History = history
	}
}

// WithTaskLogs duplicates the logs of every task into its own file.
func WithTaskLogs(logs *slogx.TaskLogs) OptionFunc {
	return func(opts *Options) {
		opts.TaskLogs = logs
	}
}

func WithWakeScreen(enabled bool) OptionFunc {
	return func(opts *Options) {
		opts.WakeScreen = enabled
	}
}

func WithClock(now func() time.Time) OptionFunc {
	return func(opts *Options) {
		opts.Now = now
	}
}
