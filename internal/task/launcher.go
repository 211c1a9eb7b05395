package task

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/bornholm/uitester/internal/device"
	"github.com/bornholm/uitester/internal/report"
	"github.com/bornholm/uitester/internal/slogx"
	"github.com/bornholm/uitester/internal/suite"
)

type SuiteResolver interface {
	Resolve(id int) (suite.Suite, error)
}

type DeviceAcquirer interface {
	Acquire(ctx context.Context, deviceID string) (*device.Lease, error)
}

type Pipeline interface {
	Run(ctx context.Context, req report.Request) (*report.Result, error)
}

// History persists the snapshots of terminated tasks.
type History interface {
	Record(ctx context.Context, snapshot Snapshot) error
}

// Launcher validates start requests, registers tasks and executes them in
// background goroutines. Tasks targeting the same device run one after
// the other.
type Launcher struct {
	registry *Registry
	suites   SuiteResolver
	devices  DeviceAcquirer
	pipeline Pipeline
	locks    *device.KeyedMutex
	opts     *Options
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mutex   sync.Mutex
	cancels map[string]context.CancelFunc
}

func (l *Launcher) Registry() *Registry {
	return l.registry
}

// Get returns the snapshot of a task of this process.
func (l *Launcher) Get(taskID string) (Snapshot, bool) {
	record, exists := l.registry.Get(taskID)
	if !exists {
		return Snapshot{}, false
	}

	return record.Snapshot(), true
}

func (l *Launcher) List(states ...State) []Snapshot {
	return l.registry.List(states...)
}

// Start registers a pending task and schedules its execution. The returned
// task id is immediately visible in the registry.
func (l *Launcher) Start(ctx context.Context, deviceID string, suiteID int) (string, error) {
	if deviceID == "" {
		return "", errors.WithStack(&InvalidRequestError{Field: "device_id", Message: "device id is required"})
	}

	s, err := l.suites.Resolve(suiteID)
	if err != nil {
		if errors.Is(err, suite.ErrNotFound) {
			return "", errors.WithStack(&InvalidRequestError{
				Field:   "suite_id",
				Message: fmt.Sprintf("suite %d does not exist", suiteID),
				Cause:   err,
			})
		}

		return "", errors.WithStack(err)
	}

	// Reserved under the lock Shutdown takes before canceling.
	l.mutex.Lock()
	if l.ctx.Err() != nil {
		l.mutex.Unlock()
		return "", errors.WithStack(ErrShuttingDown)
	}
	l.wg.Add(1)
	l.mutex.Unlock()

	record, err := l.register(deviceID, s)
	if err != nil {
		l.wg.Done()
		return "", errors.WithStack(err)
	}

	taskCtx, cancel := context.WithCancel(l.ctx)

	l.mutex.Lock()
	l.cancels[record.id] = cancel
	l.mutex.Unlock()

	tasksStartedTotal.Inc()

	l.logger.InfoContext(ctx, "task created",
		slog.String("task_id", record.id),
		slog.String("device_id", deviceID),
		slog.String("suite", s.RelPath),
	)

	go func() {
		defer l.wg.Done()
		defer l.forget(record.id)

		l.run(taskCtx, record)
	}()

	return record.id, nil
}

func (l *Launcher) register(deviceID string, s suite.Suite) (*Record, error) {
	now := l.opts.Now()

	for attempt := 0; ; attempt++ {
		id, err := NewID(now)
		if err != nil {
			return nil, errors.WithStack(err)
		}

		record := newRecord(id, deviceID, s, now)

		err = l.registry.Add(record)
		if err == nil {
			return record, nil
		}

		if !errors.Is(err, ErrAlreadyExists) || attempt >= 10 {
			return nil, errors.WithStack(err)
		}
	}
}

// Stop marks a running task as stopped and kills its processes.
func (l *Launcher) Stop(ctx context.Context, taskID string) error {
	record, exists := l.registry.Get(taskID)
	if !exists {
		return errors.Wrapf(ErrTaskNotFound, "task '%s'", taskID)
	}

	state, stopped := record.stop(l.opts.Now())
	if !stopped {
		return errors.Wrapf(ErrNotRunning, "task '%s' is %s", taskID, state)
	}

	l.mutex.Lock()
	cancel, exists := l.cancels[taskID]
	l.mutex.Unlock()

	if exists {
		cancel()
	}

	l.logger.InfoContext(ctx, "task stopped", slog.String("task_id", taskID), slog.String("device_id", record.deviceID))

	return nil
}

// Wait blocks until every started task has terminated.
func (l *Launcher) Wait() {
	l.wg.Wait()
}

// Shutdown cancels the running tasks and waits for them until ctx is done.
func (l *Launcher) Shutdown(ctx context.Context) error {
	l.mutex.Lock()
	l.cancel()
	l.mutex.Unlock()

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.WithStack(ctx.Err())
	}
}

func (l *Launcher) forget(taskID string) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if cancel, exists := l.cancels[taskID]; exists {
		cancel()
		delete(l.cancels, taskID)
	}
}

func (l *Launcher) run(ctx context.Context, record *Record) {
	ctx = slogx.WithAttrs(ctx,
		slog.String("task_id", record.id),
		slog.String("device_id", record.deviceID),
	)

	logger, closeLog := l.openTaskLog(ctx, record)

	tasksRunning.Inc()

	defer func() {
		if recovered := recover(); recovered != nil {
			record.finish(outcome{State: StateFailed, Reason: unexpectedReason(recovered)}, l.opts.Now())
			logger.ErrorContext(ctx, "task panicked", slog.Any("panic", recovered), slog.String("stack", string(debug.Stack())))
		}

		tasksRunning.Dec()

		l.settle(ctx, logger, record)

		if err := closeLog(); err != nil {
			l.logger.WarnContext(ctx, "could not close task log", slogx.Error(err))
		}
	}()

	if !record.start(l.opts.Now()) {
		return
	}

	unlock, err := l.locks.Lock(ctx, record.deviceID)
	if err != nil {
		l.interrupted(ctx, logger, record, err)
		return
	}
	defer unlock()

	logger.InfoContext(ctx, "acquiring device")

	lease, err := l.devices.Acquire(ctx, record.deviceID)
	if err != nil {
		if ctx.Err() != nil {
			l.interrupted(ctx, logger, record, err)
			return
		}

		logger.ErrorContext(ctx, "could not acquire device", slogx.Error(err))
		record.finish(outcome{State: StateFailed, Reason: report.Truncate(err.Error(), report.MaxMessageLength)}, l.opts.Now())

		return
	}
	defer lease.Release()

	if l.opts.WakeScreen {
		if err := lease.Handle().ScreenOn(ctx); err != nil {
			logger.WarnContext(ctx, "could not wake device screen", slogx.Error(err))
		}
	}

	result, err := l.pipeline.Run(ctx, report.Request{
		TaskID:   record.id,
		DeviceID: record.deviceID,
		Suite:    record.suite,
	})

	if result == nil {
		result = &report.Result{Status: report.OutcomeFailed, Reason: "pipeline returned no result"}
		if err != nil {
			result.Reason = report.Truncate(err.Error(), report.MaxMessageLength)
		}
	}

	if err != nil {
		logger.ErrorContext(ctx, "report pipeline failed", slogx.Error(err))
	}

	o := outcome{
		State:      stateFromOutcome(result.Status),
		Reason:     result.Reason,
		ReportPath: result.ReportPath,
		Archive:    result.ArchivePath,
		LogPath:    result.LogPath,
		ReturnCode: result.ReturnCode,
	}

	if ctx.Err() != nil && o.State == StateFailed {
		o.Reason = "task canceled"
	}

	record.finish(o, l.opts.Now())
}

// interrupted terminates a task whose context was canceled. A stopped task
// keeps its state.
func (l *Launcher) interrupted(ctx context.Context, logger *slog.Logger, record *Record, err error) {
	logger.WarnContext(ctx, "task interrupted", slogx.Error(err))
	record.finish(outcome{State: StateFailed, Reason: "task canceled"}, l.opts.Now())
}

func (l *Launcher) settle(ctx context.Context, logger *slog.Logger, record *Record) {
	snapshot := record.Snapshot()

	tasksFinishedTotal.WithLabelValues(string(snapshot.State)).Inc()

	logger.InfoContext(ctx, "task finished", slog.String("status", snapshot.Status))

	if l.opts.History == nil {
		return
	}

	// The task context may already be canceled at this point.
	historyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if err := l.opts.History.Record(historyCtx, snapshot); err != nil {
		logger.ErrorContext(ctx, "could not record task history", slogx.Error(err))
	}
}

func (l *Launcher) openTaskLog(ctx context.Context, record *Record) (*slog.Logger, func() error) {
	noop := func() error { return nil }

	if l.opts.TaskLogs == nil {
		return l.logger, noop
	}

	logger, path, closeLog, err := l.opts.TaskLogs.Open(l.logger, record.deviceID, record.id, record.created)
	if err != nil {
		l.logger.WarnContext(ctx, "could not open task log file", slogx.Error(err))
		return l.logger, noop
	}

	logger.DebugContext(ctx, "task log opened", slog.String("path", path))

	return logger, closeLog
}

func NewLauncher(suites SuiteResolver, devices DeviceAcquirer, pipeline Pipeline, funcs ...OptionFunc) *Launcher {
	opts := NewOptions(funcs...)

	ctx, cancel := context.WithCancel(context.Background())

	return &Launcher{
		registry: NewRegistry(),
		suites:   suites,
		devices:  devices,
		pipeline: pipeline,
		locks:    device.NewKeyedMutex(),
		opts:     opts,
		logger:   opts.Logger.With("component", "task-launcher"),
		ctx:      ctx,
		cancel:   cancel,
		cancels:  make(map[string]context.CancelFunc),
	}
}
