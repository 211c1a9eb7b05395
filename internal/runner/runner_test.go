package runner

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/bornholm/uitester/internal/slogx"
	"github.com/bornholm/uitester/internal/task"
)

type fakeServer struct {
	mutex     sync.Mutex
	states    []task.State
	polls     int
	failures  int
	stopped   bool
	lastStart map[string]any
}

func (s *fakeServer) write(w http.ResponseWriter, code int, msg string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{"code": code, "msg": msg, "data": data})
}

func (s *fakeServer) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/test/start", func(w http.ResponseWriter, r *http.Request) {
		s.mutex.Lock()
		defer s.mutex.Unlock()

		if err := json.NewDecoder(r.Body).Decode(&s.lastStart); err != nil {
			s.write(w, http.StatusBadRequest, err.Error(), nil)
			return
		}

		if s.lastStart["suite_id"] != float64(0) {
			s.write(w, http.StatusNotFound, "suite not found", nil)
			return
		}

		s.write(w, http.StatusOK, "task started", map[string]any{"task_id": "20240520143000_aaaa"})
	})

	mux.HandleFunc("GET /api/test/status/{taskID}", func(w http.ResponseWriter, r *http.Request) {
		s.mutex.Lock()
		defer s.mutex.Unlock()

		if s.failures > 0 {
			s.failures--
			s.write(w, http.StatusInternalServerError, "database is locked", nil)
			return
		}

		state := s.states[min(s.polls, len(s.states)-1)]
		s.polls++

		if s.stopped {
			state = task.StateStopped
		}

		s.write(w, http.StatusOK, "ok", map[string]any{
			"task_id": r.PathValue("taskID"),
			"status":  string(state),
			"state":   string(state),
		})
	})

	mux.HandleFunc("POST /api/test/stop/{taskID}", func(w http.ResponseWriter, r *http.Request) {
		s.mutex.Lock()
		defer s.mutex.Unlock()

		s.stopped = true
		s.write(w, http.StatusOK, "task stopped", nil)
	})

	mux.HandleFunc("GET /api/device/list", func(w http.ResponseWriter, r *http.Request) {
		s.write(w, http.StatusBadRequest, "no device detected", []any{})
	})

	return mux
}

func newTestRunner(t *testing.T, server *fakeServer) *Runner {
	ts := httptest.NewServer(server.handler())
	t.Cleanup(ts.Close)

	runner, err := New(ts.URL+"/api",
		WithLogger(slogx.NewTestLogger(t)),
		WithPollInterval(10*time.Millisecond),
		WithMaxRetryTime(5*time.Second),
	)
	if err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}

	return runner
}

func TestRunnerRun(t *testing.T) {
	server := &fakeServer{
		states:   []task.State{task.StatePending, task.StateRunning, task.StateRunning, task.StateSuccessWithFailure},
		failures: 2,
	}

	runner := newTestRunner(t, server)

	status, err := runner.Run(context.Background(), "emulator-5554", 0)
	if err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}

	if status.State != task.StateSuccessWithFailure {
		t.Errorf("expected state '%s', got '%s'", task.StateSuccessWithFailure, status.State)
	}

	server.mutex.Lock()
	defer server.mutex.Unlock()

	if server.lastStart["device_id"] != "emulator-5554" {
		t.Errorf("unexpected start request %v", server.lastStart)
	}

	if server.polls != 4 {
		t.Errorf("expected 4 successful polls, got %d", server.polls)
	}
}

func TestRunnerStartError(t *testing.T) {
	runner := newTestRunner(t, &fakeServer{states: []task.State{task.StateSuccess}})

	_, err := runner.Run(context.Background(), "emulator-5554", 3)

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected an *APIError, got %+v", err)
	}

	if apiErr.Code != http.StatusNotFound {
		t.Errorf("expected code 404, got %d", apiErr.Code)
	}
}

func TestRunnerStopOnCancel(t *testing.T) {
	server := &fakeServer{states: []task.State{task.StateRunning}}

	runner := newTestRunner(t, server)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := runner.Run(ctx, "emulator-5554", 0)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context.DeadlineExceeded, got %+v", err)
	}

	server.mutex.Lock()
	defer server.mutex.Unlock()

	if !server.stopped {
		t.Errorf("remote task should have been stopped")
	}
}

func TestClientListDevicesEmpty(t *testing.T) {
	runner := newTestRunner(t, &fakeServer{})

	devices, err := runner.Client().ListDevices(context.Background())
	if err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}

	if len(devices) != 0 {
		t.Errorf("expected no device, got %d", len(devices))
	}
}
