package process

import (
	"log/slog"
	"time"
)

type Options struct {
	Logger    *slog.Logger
	WaitDelay time.Duration
}

type OptionFunc func(opts *Options)

func NewOptions(funcs ...OptionFunc) *Options {
	opts := &Options{
		Logger:    slog.Default(),
		WaitDelay: 5 * time.Second,
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

// WithWaitDelay bounds how long Run waits for output pipes once the
// command exited or was killed.
func WithWaitDelay(delay time.Duration) OptionFunc {
	return func(opts *Options) {
		opts.WaitDelay = delay
	}
}
