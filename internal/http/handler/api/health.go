package api

import (
	"context"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/v4/process"

	"github.com/bornholm/uitester/internal/slogx"
)

const (
	healthOK       = "ok"
	healthDegraded = "degraded"
)

// handleHealth handles GET /health
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	response := HealthResponse{
		Status: healthOK,
		Checks: map[string]string{},
	}

	if h.opts.Pinger != nil {
		if err := h.opts.Pinger.Ping(ctx); err != nil {
			h.logger.WarnContext(ctx, "store ping failed", slogx.Error(err))
			response.Checks["store"] = err.Error()
			response.Status = healthDegraded
		} else {
			response.Checks["store"] = healthOK
		}
	}

	if info, err := os.Stat(h.workspace.BasePath()); err != nil {
		response.Checks["report_root"] = err.Error()
		response.Status = healthDegraded
	} else if !info.IsDir() {
		response.Checks["report_root"] = "not a directory"
		response.Status = healthDegraded
	} else {
		response.Checks["report_root"] = healthOK
	}

	stats, err := currentProcessStats(ctx)
	if err != nil {
		h.logger.WarnContext(ctx, "could not collect process stats", slogx.Error(err))
	} else {
		response.Process = stats
	}

	code := http.StatusOK
	if response.Status != healthOK {
		code = http.StatusServiceUnavailable
	}

	writeJSONResponse(w, code, response.Status, response)
}

func currentProcessStats(ctx context.Context) (*ProcessStats, error) {
	proc, err := process.NewProcessWithContext(ctx, int32(os.Getpid()))
	if err != nil {
		return nil, errors.WithStack(err)
	}

	memory, err := proc.MemoryInfoWithContext(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	cpu, err := proc.CPUPercentWithContext(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	threads, err := proc.NumThreadsWithContext(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	stats := &ProcessStats{
		PID:           proc.Pid,
		RSS:           memory.RSS,
		RSSHuman:      humanize.Bytes(memory.RSS),
		CPUPercent:    cpu,
		NumThreads:    threads,
		NumGoroutines: runtime.NumGoroutine(),
	}

	if createdAt, err := proc.CreateTimeWithContext(ctx); err == nil {
		stats.Uptime = time.Since(time.UnixMilli(createdAt)).Round(time.Second).String()
	}

	return stats, nil
}
