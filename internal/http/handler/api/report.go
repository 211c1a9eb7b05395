package api

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/bornholm/uitester/internal/file"
	"github.com/bornholm/uitester/internal/report"
	"github.com/bornholm/uitester/internal/task"
)

// handleReport handles GET /report/{taskID}
func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	taskID := r.PathValue("taskID")

	if !task.ValidID(taskID) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("report of task '%s' not found", taskID))
		return
	}

	taskDir, err := h.workspace.TaskPath(taskID)
	if err != nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("report of task '%s' not found", taskID))
		return
	}

	layout := report.NewLayout(taskDir)

	metadata, err := report.ReadMetadata(layout.Metadata)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			writeError(w, http.StatusNotFound, fmt.Sprintf("report of task '%s' not found", taskID))
			return
		}

		h.handleInternalError(w, r, err, "could not read report metadata")
		return
	}

	hasEntry := file.Exists(layout.Entry())
	hasArchive := file.Exists(layout.Archive)

	if !hasEntry && !hasArchive {
		writeError(w, http.StatusNotFound, fmt.Sprintf("report of task '%s' was not generated", taskID))
		return
	}

	response := ReportResponse{
		Metadata: metadata,
	}

	// The uncompressed report may have been discarded once archived.
	if hasEntry {
		response.ReportPath = layout.ReportDir
		response.AccessURL = h.reportFileURL(ctx, taskID, report.EntryFile)
	}

	if hasArchive {
		response.ArchiveURL = h.reportArchiveURL(ctx, taskID)
	}

	writeSuccess(w, "ok", response)
}

// handleReportArchive handles GET /report/{taskID}/archive
func (h *Handler) handleReportArchive(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("taskID")

	if !task.ValidID(taskID) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("archive of task '%s' not found", taskID))
		return
	}

	taskDir, err := h.workspace.TaskPath(taskID)
	if err != nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("archive of task '%s' not found", taskID))
		return
	}

	layout := report.NewLayout(taskDir)

	f, err := os.Open(layout.Archive)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			writeError(w, http.StatusNotFound, fmt.Sprintf("archive of task '%s' not found", taskID))
			return
		}

		h.handleInternalError(w, r, err, "could not open report archive")
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		h.handleInternalError(w, r, err, "could not stat report archive")
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", taskID+"-"+report.ArchiveFile))

	http.ServeContent(w, r, report.ArchiveFile, info.ModTime(), f)
}

// handleReportFile handles GET /report/files/{taskID}/{path...}
func (h *Handler) handleReportFile(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, reportFilesPrefix)

	taskID, rel, _ := strings.Cut(rest, "/")
	if taskID == "" {
		writeError(w, http.StatusNotFound, "resource not found")
		return
	}

	if rel == "" {
		rel = report.EntryFile
	}

	taskDir, err := h.workspace.TaskPath(taskID)
	if err != nil {
		writeError(w, http.StatusForbidden, "forbidden path")
		return
	}

	layout := report.NewLayout(taskDir)

	if info, err := os.Stat(layout.ReportDir); err != nil || !info.IsDir() {
		writeError(w, http.StatusNotFound, fmt.Sprintf("report of task '%s' not found", taskID))
		return
	}

	target, err := file.SafeJoin(layout.ReportDir, rel)
	if err != nil {
		if errors.Is(err, file.ErrForbiddenPath) {
			h.logger.WarnContext(r.Context(), "rejected report file path", "task_id", taskID, "path", rel)
			writeError(w, http.StatusForbidden, "forbidden path")
			return
		}

		h.handleInternalError(w, r, err, "could not resolve report file")
		return
	}

	info, err := os.Stat(target)
	if err == nil && info.IsDir() {
		target = filepath.Join(target, report.EntryFile)
		info, err = os.Stat(target)
	}

	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			writeError(w, http.StatusNotFound, fmt.Sprintf("file '%s' not found", rel))
			return
		}

		h.handleInternalError(w, r, err, "could not stat report file")
		return
	}

	f, err := os.Open(target)
	if err != nil {
		h.handleInternalError(w, r, err, "could not open report file")
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", file.DetectMimeType(target))

	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}
