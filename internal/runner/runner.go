package runner

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"

	"github.com/bornholm/uitester/internal/slogx"
	"github.com/bornholm/uitester/internal/task"
)

// Runner starts a suite through the API and follows the task until it
// terminates.
type Runner struct {
	client       *Client
	logger       *slog.Logger
	pollInterval time.Duration
	maxRetryTime time.Duration
	stopOnCancel bool
}

func (r *Runner) Client() *Client {
	return r.client
}

// Run starts the suite on the device and waits for the task to terminate.
func (r *Runner) Run(ctx context.Context, deviceID string, suiteID int) (*TaskStatus, error) {
	taskID, err := r.client.StartTest(ctx, deviceID, suiteID)
	if err != nil {
		return nil, errors.Wrap(err, "could not start test")
	}

	r.logger.InfoContext(ctx, "task started", slog.String("task_id", taskID), slog.String("device_id", deviceID), slog.Int("suite_id", suiteID))

	status, err := r.Wait(ctx, taskID)
	if err != nil {
		return status, errors.WithStack(err)
	}

	return status, nil
}

// Wait polls the status of the task until it reaches a terminal state.
// When ctx is canceled the task is stopped, unless disabled.
func (r *Runner) Wait(ctx context.Context, taskID string) (*TaskStatus, error) {
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	var last task.State

	for {
		status, err := r.status(ctx, taskID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, r.cancel(ctx, taskID)
			}

			return nil, errors.Wrapf(err, "could not retrieve status of task '%s'", taskID)
		}

		if status.State != last {
			r.logger.InfoContext(ctx, "task status changed", slog.String("task_id", taskID), slog.String("status", status.Status))
			last = status.State
		}

		if status.State.Terminal() {
			return status, nil
		}

		select {
		case <-ctx.Done():
			return status, r.cancel(ctx, taskID)
		case <-ticker.C:
		}
	}
}

func (r *Runner) status(ctx context.Context, taskID string) (*TaskStatus, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = r.pollInterval
	policy.MaxElapsedTime = r.maxRetryTime

	operation := func() (*TaskStatus, error) {
		status, err := r.client.Status(ctx, taskID)
		if err == nil {
			return status, nil
		}

		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.Temporary() {
			return nil, backoff.Permanent(err)
		}

		return nil, err
	}

	notify := func(err error, next time.Duration) {
		r.logger.WarnContext(ctx, "status request failed, retrying", slog.String("task_id", taskID), slog.Duration("next", next), slogx.Error(err))
	}

	status, err := backoff.RetryNotifyWithData(operation, backoff.WithContext(policy, ctx), notify)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return status, nil
}

func (r *Runner) cancel(ctx context.Context, taskID string) error {
	cause := errors.WithStack(ctx.Err())

	if !r.stopOnCancel {
		return cause
	}

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if err := r.client.StopTest(stopCtx, taskID); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusBadRequest {
			return cause
		}

		r.logger.ErrorContext(ctx, "could not stop task", slog.String("task_id", taskID), slogx.Error(err))

		return cause
	}

	r.logger.InfoContext(ctx, "task stopped", slog.String("task_id", taskID))

	return cause
}

func New(rawServerURL string, funcs ...OptionFunc) (*Runner, error) {
	opts, err := NewOptions(funcs...)
	if err != nil {
		return nil, errors.Wrap(err, "could not create options")
	}

	client, err := NewClient(rawServerURL, opts.HTTPClient)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return &Runner{
		client:       client,
		logger:       opts.Logger.With("component", "runner"),
		pollInterval: opts.PollInterval,
		maxRetryTime: opts.MaxRetryTime,
		stopOnCancel: opts.StopOnCancel,
	}, nil
}
