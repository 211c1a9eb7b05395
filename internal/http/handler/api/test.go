package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/pkg/errors"

	"github.com/bornholm/uitester/internal/report"
	"github.com/bornholm/uitester/internal/store/repository/run"
	"github.com/bornholm/uitester/internal/task"

	httpCtx "github.com/bornholm/uitester/internal/http/context"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// handleSuiteList handles GET /test/suites
func (h *Handler) handleSuiteList(w http.ResponseWriter, r *http.Request) {
	suites, err := h.suites.List()
	if err != nil {
		h.handleInternalError(w, r, err, "could not list suites")
		return
	}

	writeSuccess(w, fmt.Sprintf("%d suite(s) found", len(suites)), suites)
}

// handleTestStart handles POST /test/start
func (h *Handler) handleTestStart(w http.ResponseWriter, r *http.Request) {
	var req StartTestRequest
	if err := h.parseJSONRequest(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	taskID, err := h.tasks.Start(r.Context(), req.DeviceID, *req.SuiteID)
	if err != nil {
		h.handleTaskError(w, r, err, "could not start task")
		return
	}

	writeSuccess(w, "task started", StartTestResponse{TaskID: taskID})
}

// handleTestStatus handles GET /test/status/{taskID}
func (h *Handler) handleTestStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	taskID := r.PathValue("taskID")

	if !task.ValidID(taskID) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("task '%s' not found", taskID))
		return
	}

	snapshot, exists := h.tasks.Get(taskID)
	if !exists {
		found, err := h.findInHistory(ctx, taskID)
		if err != nil {
			h.handleInternalError(w, r, err, "could not retrieve task history")
			return
		}

		if found == nil {
			writeError(w, http.StatusNotFound, fmt.Sprintf("task '%s' not found", taskID))
			return
		}

		snapshot = *found
	}

	writeSuccess(w, "ok", h.taskResponse(ctx, snapshot))
}

func (h *Handler) findInHistory(ctx context.Context, taskID string) (*task.Snapshot, error) {
	if h.opts.History == nil {
		return nil, nil
	}

	snapshot, err := h.opts.History.Find(ctx, taskID)
	if err != nil {
		if errors.Is(err, run.ErrNotFound) {
			return nil, nil
		}

		return nil, errors.WithStack(err)
	}

	return snapshot, nil
}

// handleTestRunning handles GET /test/running
func (h *Handler) handleTestRunning(w http.ResponseWriter, r *http.Request) {
	snapshots := h.tasks.List(task.StateRunning)

	responses := make([]TaskResponse, 0, len(snapshots))
	for _, snapshot := range snapshots {
		responses = append(responses, h.taskResponse(r.Context(), snapshot))
	}

	writeSuccess(w, fmt.Sprintf("%d running task(s)", len(responses)), responses)
}

// handleTestStop handles POST /test/stop/{taskID}
func (h *Handler) handleTestStop(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	taskID := r.PathValue("taskID")

	if !task.ValidID(taskID) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("task '%s' not found", taskID))
		return
	}

	if err := h.tasks.Stop(ctx, taskID); err != nil {
		h.handleTaskError(w, r, err, "could not stop task")
		return
	}

	snapshot, _ := h.tasks.Get(taskID)

	h.logger.InfoContext(ctx, "task stop requested", slog.String("task_id", taskID))

	writeSuccess(w, "task stopped", h.taskResponse(ctx, snapshot))
}

// handleTestHistory handles GET /test/history
func (h *Handler) handleTestHistory(w http.ResponseWriter, r *http.Request) {
	if h.opts.History == nil {
		writeError(w, http.StatusNotFound, "task history is disabled")
		return
	}

	limit, err := queryInt(r, "limit", defaultHistoryLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if limit == 0 || limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	snapshots, total, err := h.opts.History.List(r.Context(), limit, offset)
	if err != nil {
		h.handleInternalError(w, r, err, "could not list task history")
		return
	}

	responses := make([]TaskResponse, 0, len(snapshots))
	for _, snapshot := range snapshots {
		responses = append(responses, h.taskResponse(r.Context(), snapshot))
	}

	writeSuccess(w, "ok", HistoryResponse{
		Total:  total,
		Limit:  limit,
		Offset: offset,
		Tasks:  responses,
	})
}

func (h *Handler) taskResponse(ctx context.Context, snapshot task.Snapshot) TaskResponse {
	response := TaskResponse{Snapshot: snapshot}

	if snapshot.ArchivePath != "" {
		response.ArchiveURL = h.reportArchiveURL(ctx, snapshot.TaskID)
	}

	switch {
	case snapshot.ReportPath != "":
		response.ReportURL = h.reportFileURL(ctx, snapshot.TaskID, report.EntryFile)
	case response.ArchiveURL != "":
		response.ReportURL = response.ArchiveURL
	}

	return response
}

func (h *Handler) reportFileURL(ctx context.Context, taskID string, path string) string {
	return httpCtx.BaseURL(ctx).JoinPath(h.opts.MountPath, "report/files", taskID, path).String()
}

func (h *Handler) reportArchiveURL(ctx context.Context, taskID string) string {
	return httpCtx.BaseURL(ctx).JoinPath(h.opts.MountPath, "report", taskID, "archive").String()
}
