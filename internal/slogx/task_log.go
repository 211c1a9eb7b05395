package slogx

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	pkgerrors "github.com/pkg/errors"
)

// TaskLogs opens one log file per task under
// <root>/<device_id>/<YYYYMMDD>/<task_id>.log.
type TaskLogs struct {
	root  string
	level slog.Leveler
}

func NewTaskLogs(root string, level slog.Leveler) *TaskLogs {
	return &TaskLogs{
		root:  root,
		level: level,
	}
}

func (l *TaskLogs) Path(deviceID, taskID string, at time.Time) string {
	return filepath.Join(l.root, deviceID, at.Format("20060102"), taskID+".log")
}

// Open returns a logger writing both to the given parent logger and to the
// task log file. The returned close function must be called once the task
// is done.
func (l *TaskLogs) Open(parent *slog.Logger, deviceID, taskID string, at time.Time) (*slog.Logger, string, func() error, error) {
	path := l.Path(deviceID, taskID, at)

	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, "", nil, pkgerrors.Wrapf(err, "could not create task log directory '%s'", filepath.Dir(path))
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
	if err != nil {
		return nil, "", nil, pkgerrors.Wrapf(err, "could not open task log '%s'", path)
	}

	fileHandler := slog.NewTextHandler(file, &slog.HandlerOptions{
		Level: l.level,
	})

	logger := slog.New(fanoutHandler{
		handlers: []slog.Handler{
			parent.Handler(),
			ContextHandler{Handler: fileHandler},
		},
	})

	return logger, path, file.Close, nil
}

type fanoutHandler struct {
	handlers []slog.Handler
}

// Enabled implements slog.Handler.
func (h fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}

	return false
}

// Handle implements slog.Handler.
func (h fanoutHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error

	for _, handler := range h.handlers {
		if !handler.Enabled(ctx, r.Level) {
			continue
		}

		if err := handler.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// WithAttrs implements slog.Handler.
func (h fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, 0, len(h.handlers))
	for _, handler := range h.handlers {
		handlers = append(handlers, handler.WithAttrs(attrs))
	}

	return fanoutHandler{handlers: handlers}
}

// WithGroup implements slog.Handler.
func (h fanoutHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, 0, len(h.handlers))
	for _, handler := range h.handlers {
		handlers = append(handlers, handler.WithGroup(name))
	}

	return fanoutHandler{handlers: handlers}
}

var _ slog.Handler = fanoutHandler{}
