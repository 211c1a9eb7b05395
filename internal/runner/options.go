package runner

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

type Options struct {
	HTTPClient   *http.Client
	Logger       *slog.Logger
	PollInterval time.Duration
	MaxRetryTime time.Duration
	StopOnCancel bool
}

type OptionFunc func(opts *Options) error

func NewOptions(funcs ...OptionFunc) (*Options, error) {
	opts := &Options{
		HTTPClient:   &http.Client{Timeout: 30 * time.Second},
		Logger:       slog.Default(),
		PollInterval: 5 * time.Second,
		MaxRetryTime: time.Minute,
		StopOnCancel: true,
	}

	for _, fn := range funcs {
		if err := fn(opts); err != nil {
			return nil, errors.WithStack(err)
		}
	}

	return opts, nil
}

func WithHTTPClient(client *http.Client) OptionFunc {
	return func(opts *Options) error {
		opts.HTTPClient = client
		return nil
	}
}

func WithLogger(logger *slog.Logger) OptionFunc {
	return func(opts *Options) error {
		opts.Logger = logger
		return nil
	}
}

func WithPollInterval(interval time.Duration) OptionFunc {
	return func(opts *Options) error {
		if interval <= 0 {
			return errors.Errorf("invalid poll interval '%s'", interval)
		}

		opts.PollInterval = interval
		return nil
	}
}

// WithMaxRetryTime bounds the time spent retrying a status request which
// failed on a transport or server error.
func WithMaxRetryTime(d time.Duration) OptionFunc {
	return func(opts *Options) error {
		opts.MaxRetryTime = d
		return nil
	}
}

// WithStopOnCancel sets whether the remote task is stopped when the
// runner context is canceled.
func WithStopOnCancel(enabled bool) OptionFunc {
	return func(opts *Options) error {
		opts.StopOnCancel = enabled
		return nil
	}
}
