package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/bornholm/uitester/internal/device"
	"github.com/bornholm/uitester/internal/file"
	"github.com/bornholm/uitester/internal/suite"
	"github.com/bornholm/uitester/internal/task"
)

type Devices interface {
	List(ctx context.Context) ([]device.Status, error)
	Status(deviceID string) (device.Status, bool)
}

type Suites interface {
	List() ([]suite.Suite, error)
}

type Tasks interface {
	Start(ctx context.Context, deviceID string, suiteID int) (string, error)
	Stop(ctx context.Context, taskID string) error
	Get(taskID string) (task.Snapshot, bool)
	List(states ...task.State) []task.Snapshot
}

// History gives access to the tasks of previous server runs.
type History interface {
	Find(ctx context.Context, taskID string) (*task.Snapshot, error)
	List(ctx context.Context, limit, offset int) ([]task.Snapshot, int64, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

const reportFilesPrefix = "/report/files/"

type Handler struct {
	mux       *http.ServeMux
	devices   Devices
	suites    Suites
	tasks     Tasks
	workspace *file.Workspace
	opts      *Options
	validate  *validator.Validate
	logger    *slog.Logger
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Report file paths are resolved by the handler itself so that
	// traversal attempts are rejected instead of being cleaned up.
	if strings.HasPrefix(r.URL.Path, reportFilesPrefix) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			writeError(w, http.StatusMethodNotAllowed, http.StatusText(http.StatusMethodNotAllowed))
			return
		}

		h.handleReportFile(w, r)
		return
	}

	h.mux.ServeHTTP(w, r)
}

func NewHandler(devices Devices, suites Suites, tasks Tasks, workspace *file.Workspace, funcs ...OptionFunc) *Handler {
	opts := NewOptions(funcs...)

	h := &Handler{
		mux:       http.NewServeMux(),
		devices:   devices,
		suites:    suites,
		tasks:     tasks,
		workspace: workspace,
		opts:      opts,
		validate:  newValidator(),
		logger:    opts.Logger.With("component", "api-handler"),
	}

	h.mux.HandleFunc("GET /device/list", h.handleDeviceList)
	h.mux.HandleFunc("GET /device/{deviceID}/status", h.handleDeviceStatus)

	h.mux.HandleFunc("GET /test/suites", h.handleSuiteList)
	h.mux.HandleFunc("POST /test/start", h.handleTestStart)
	h.mux.HandleFunc("GET /test/status/{taskID}", h.handleTestStatus)
	h.mux.HandleFunc("GET /test/running", h.handleTestRunning)
	h.mux.HandleFunc("POST /test/stop/{taskID}", h.handleTestStop)
	h.mux.HandleFunc("GET /test/history", h.handleTestHistory)

	h.mux.HandleFunc("GET /report/{taskID}", h.handleReport)
	h.mux.HandleFunc("GET /report/{taskID}/archive", h.handleReportArchive)

	h.mux.HandleFunc("GET /health", h.handleHealth)

	h.mux.HandleFunc("/", h.handleNotFound)

	return h
}

func (h *Handler) handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "resource not found")
}

var _ http.Handler = &Handler{}
