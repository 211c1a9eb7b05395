package http

import (
	"log/slog"
	"net/http"
	"time"
)

type Options struct {
	Address         string
	BaseURL         string
	Mounts          map[string]http.Handler
	Logger          *slog.Logger
	ShutdownTimeout time.Duration
	QuietPaths      []string
}

type OptionFunc func(opts *Options)

func NewOptions(funcs ...OptionFunc) *Options {
	opts := &Options{
		Address:         ":3002",
		BaseURL:         "/",
		Mounts:          map[string]http.Handler{},
		Logger:          slog.Default(),
		ShutdownTimeout: 30 * time.Second,
	}
	for _, fn := range funcs {
		fn(opts)
	}
	return opts
}

func WithMount(prefix string, handler http.Handler) OptionFunc {
	return func(opts *Options) {
		opts.Mounts[prefix] = handler
	}
}

func WithBaseURL(baseURL string) OptionFunc {
	return func(opts *Options) {
		opts.BaseURL = baseURL
	}
}

func WithAddress(addr string) OptionFunc {
	return func(opts *Options) {
		opts.Address = addr
	}
}

func WithLogger(logger *slog.Logger) OptionFunc {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

func WithShutdownTimeout(timeout time.Duration) OptionFunc {
	return func(opts *Options) {
		opts.ShutdownTimeout = timeout
	}
}

// WithQuietPaths excludes the requests matching the given path prefixes
// from the access log. Polled routes would flood it otherwise.
func WithQuietPaths(prefixes ...string) OptionFunc {
	return func(opts *Options) {
		opts.QuietPaths = append(opts.QuietPaths, prefixes...)
	}
}
