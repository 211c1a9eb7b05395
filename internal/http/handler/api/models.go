package api

import (
	"github.com/bornholm/uitester/internal/report"
	"github.com/bornholm/uitester/internal/task"
)

// Envelope wraps every API response.
type Envelope struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data any    `json:"data"`
}

type StartTestRequest struct {
	DeviceID string `json:"device_id" validate:"required"`
	SuiteID  *int   `json:"suite_id" validate:"required"`
}

type StartTestResponse struct {
	TaskID string `json:"task_id"`
}

type TaskResponse struct {
	task.Snapshot
	ReportURL  string `json:"report_url,omitempty"`
	ArchiveURL string `json:"archive_url,omitempty"`
}

type HistoryResponse struct {
	Total  int64          `json:"total"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
	Tasks  []TaskResponse `json:"tasks"`
}

type ReportResponse struct {
	*report.Metadata
	ReportPath string `json:"report_path,omitempty"`
	AccessURL  string `json:"access_url,omitempty"`
	ArchiveURL string `json:"archive_url,omitempty"`
}

type HealthResponse struct {
	Status  string            `json:"status"`
	Checks  map[string]string `json:"checks"`
	Process *ProcessStats     `json:"process,omitempty"`
}

type ProcessStats struct {
	PID           int32   `json:"pid"`
	RSS           uint64  `json:"rss"`
	RSSHuman      string  `json:"rss_human"`
	CPUPercent    float64 `json:"cpu_percent"`
	NumThreads    int32   `json:"num_threads"`
	NumGoroutines int     `json:"num_goroutines"`
	Uptime        string  `json:"uptime"`
}
