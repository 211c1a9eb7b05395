package slogx

import (
	"context"
	"log/slog"
	"slices"
)

type contextKey string

const (
	slogFields contextKey = "slogFields"
)

// ContextHandler appends the attributes stored with WithAttrs to every
// record logged with the matching context.
type ContextHandler struct {
	slog.Handler
}

func (h ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	r.AddAttrs(Attrs(ctx)...)
	return h.Handler.Handle(ctx, r)
}

// WithAttrs implements slog.Handler.
func (h ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return ContextHandler{Handler: h.Handler.WithAttrs(attrs)}
}

// WithGroup implements slog.Handler.
func (h ContextHandler) WithGroup(name string) slog.Handler {
	return ContextHandler{Handler: h.Handler.WithGroup(name)}
}

func WithAttrs(parent context.Context, attrs ...slog.Attr) context.Context {
	if parent == nil {
		parent = context.Background()
	}

	existing := Attrs(parent)

	v := make([]slog.Attr, 0, len(existing)+len(attrs))
	v = append(v, existing...)
	v = append(v, attrs...)

	return context.WithValue(parent, slogFields, v)
}

func Attrs(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}

	attrs, ok := ctx.Value(slogFields).([]slog.Attr)
	if !ok {
		return nil
	}

	return slices.Clone(attrs)
}

var _ slog.Handler = ContextHandler{}
