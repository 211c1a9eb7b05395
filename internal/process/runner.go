package process

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/bornholm/uitester/internal/slogx"
	"github.com/pkg/errors"
)

type Executor interface {
	Run(ctx context.Context, command Command) (*Result, error)
}

type Runner struct {
	logger    *slog.Logger
	waitDelay time.Duration
}

// Run executes the command and waits for it. A non-zero exit code is
// reported through Result.ReturnCode, never as an error. When the command
// timeout expires a *TimeoutError is returned along with the partial
// result. When ctx is canceled its error is returned.
func (r *Runner) Run(ctx context.Context, command Command) (*Result, error) {
	if command.Name == "" {
		return nil, errors.New("empty command")
	}

	var (
		runCtx context.Context
		cancel context.CancelFunc
	)

	if command.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, command.Timeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	var stdout, stderr bytes.Buffer

	cmd := exec.CommandContext(runCtx, command.Name, command.Args...)
	cmd.Dir = command.Dir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = r.waitDelay
	cmd.Cancel = func() error {
		return killTree(cmd.Process.Pid)
	}

	if len(command.Env) > 0 {
		cmd.Env = append(os.Environ(), command.Env...)
	}

	r.logger.DebugContext(ctx, "running command", slog.String("command", command.String()), slog.Duration("timeout", command.Timeout))

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	if cmd.ProcessState == nil {
		if ctx.Err() != nil {
			return nil, errors.WithStack(ctx.Err())
		}

		return nil, errors.Wrapf(err, "could not start command '%s'", command)
	}

	result := &Result{
		ReturnCode: cmd.ProcessState.ExitCode(),
		Stdout:     stdout.String(),
		Stderr:     stderr.String(),
		Duration:   duration,
	}

	if ctx.Err() != nil {
		return result, errors.WithStack(ctx.Err())
	}

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		r.logger.WarnContext(ctx, "command timed out", slog.String("command", command.String()), slog.Duration("elapsed", duration))

		return result, &TimeoutError{
			Command: command.String(),
			Timeout: command.Timeout,
			Elapsed: duration,
		}
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return result, nil
		}

		if errors.Is(err, exec.ErrWaitDelay) {
			r.logger.WarnContext(ctx, "command left its output open after exiting", slog.String("command", command.String()), slogx.Error(err))
			return result, nil
		}

		return result, errors.WithStack(err)
	}

	r.logger.DebugContext(ctx, "command finished", slog.String("command", command.String()), slog.Int("return_code", result.ReturnCode), slog.Duration("duration", duration))

	return result, nil
}

func NewRunner(funcs ...OptionFunc) *Runner {
	opts := NewOptions(funcs...)
	return &Runner{
		logger:    opts.Logger.With("component", "process-runner"),
		waitDelay: opts.WaitDelay,
	}
}

var _ Executor = &Runner{}
