package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	sloghttp "github.com/samber/slog-http"

	httpCtx "github.com/bornholm/uitester/internal/http/context"
	"github.com/bornholm/uitester/internal/slogx"
)

type Server struct {
	opts *Options
}

func (s *Server) Handler() http.Handler {
	mux := &http.ServeMux{}
	for mountpoint, handler := range s.opts.Mounts {
		mount(mux, mountpoint, handler)
	}

	handler := sloghttp.Recovery(mux)
	handler = sloghttp.NewWithConfig(s.opts.Logger, sloghttp.Config{
		DefaultLevel:     slog.LevelInfo,
		ClientErrorLevel: slog.LevelWarn,
		ServerErrorLevel: slog.LevelError,
		WithRequestID:    true,
		Filters: []sloghttp.Filter{
			sloghttp.IgnorePathPrefix(s.opts.QuietPaths...),
		},
	})(handler)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := httpCtx.SetBaseURL(r.Context(), s.opts.BaseURL)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}(handler)
}

// Run serves until ctx is done, then waits for in-flight requests up to the
// shutdown timeout.
func (s *Server) Run(ctx context.Context) error {
	server := http.Server{
		Addr:              s.opts.Address,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	done := make(chan struct{})

	go func() {
		defer close(done)

		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			s.opts.Logger.ErrorContext(ctx, "could not shutdown server gracefully", slogx.Error(errors.WithStack(err)))

			if err := server.Close(); err != nil {
				s.opts.Logger.ErrorContext(ctx, "could not close server", slogx.Error(errors.WithStack(err)))
			}
		}
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.WithStack(err)
	}

	<-done

	return nil
}

func mount(mux *http.ServeMux, prefix string, handler http.Handler) {
	trimmed := strings.TrimSuffix(prefix, "/")

	if len(trimmed) > 0 {
		mux.Handle(prefix, http.StripPrefix(trimmed, handler))
	} else {
		mux.Handle(prefix, handler)
	}
}

func NewServer(funcs ...OptionFunc) *Server {
	opts := NewOptions(funcs...)
	return &Server{
		opts: opts,
	}
}
