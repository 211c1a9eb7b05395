package pprof

import (
	"expvar"
	"net/http"
	"net/http/pprof"
)

type Handler struct {
	mux *http.ServeMux
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// NewHandler exposes the runtime profiles, used to inspect the goroutines
// and child processes held by long running tasks.
func NewHandler() *Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", pprof.Index)
	mux.HandleFunc("GET /cmdline", pprof.Cmdline)
	mux.HandleFunc("GET /profile", pprof.Profile)
	mux.HandleFunc("GET /symbol", pprof.Symbol)
	mux.HandleFunc("POST /symbol", pprof.Symbol)
	mux.HandleFunc("GET /trace", pprof.Trace)
	mux.Handle("GET /vars", expvar.Handler())
	mux.HandleFunc("GET /{name}", func(w http.ResponseWriter, r *http.Request) {
		pprof.Handler(r.PathValue("name")).ServeHTTP(w, r)
	})

	return &Handler{mux}
}

var _ http.Handler = &Handler{}
