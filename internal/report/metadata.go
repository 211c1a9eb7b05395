package report

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"

	"github.com/bornholm/uitester/internal/file"
)

type StepStatus string

const (
	StepOK      StepStatus = "ok"
	StepWarning StepStatus = "warning"
	StepFailed  StepStatus = "failed"
	StepSkipped StepStatus = "skipped"
)

type Metadata struct {
	TaskID     string              `json:"task_id"`
	DeviceID   string              `json:"device_id"`
	Suite      SuiteInfo           `json:"suite"`
	Status     Outcome             `json:"status"`
	Reason     string              `json:"reason,omitempty"`
	ReturnCode *int                `json:"return_code,omitempty"`
	StartedAt  time.Time           `json:"started_at"`
	FinishedAt time.Time           `json:"finished_at"`
	Duration   string              `json:"duration"`
	Config     ConfigSnapshot      `json:"config"`
	Steps      []*StepRecord       `json:"steps"`
	Sizes      map[string]SizeInfo `json:"sizes"`
}

type SuiteInfo struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

type ConfigSnapshot struct {
	TestTimeout         string `json:"test_timeout"`
	Grace               string `json:"grace"`
	CompileTimeout      string `json:"compile_timeout"`
	Clean               bool   `json:"clean"`
	Compress            bool   `json:"compress"`
	DiscardUncompressed bool   `json:"discard_uncompressed"`
}

type StepRecord struct {
	Name       string     `json:"name"`
	Status     StepStatus `json:"status"`
	Command    string     `json:"command,omitempty"`
	ReturnCode *int       `json:"return_code,omitempty"`
	DurationMS int64      `json:"duration_ms"`
	Error      string     `json:"error,omitempty"`
}

type SizeInfo struct {
	Bytes int64  `json:"bytes"`
	Files int    `json:"files"`
	Human string `json:"human"`
}

func newSizeInfo(stats *file.StorageStats) SizeInfo {
	return SizeInfo{
		Bytes: stats.TotalSize,
		Files: stats.FileCount,
		Human: humanize.Bytes(uint64(stats.TotalSize)),
	}
}

// ReadMetadata loads the metadata record of a task.
func ReadMetadata(path string) (*Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	var metadata Metadata
	if err := json.Unmarshal(data, &metadata); err != nil {
		return nil, errors.Wrapf(err, "could not decode metadata '%s'", path)
	}

	return &metadata, nil
}

func writeMetadata(path string, metadata *Metadata) error {
	data, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		return errors.WithStack(err)
	}

	tmp := path + ".tmp"

	if err := os.WriteFile(tmp, data, 0640); err != nil {
		return errors.Wrapf(err, "could not write metadata '%s'", tmp)
	}

	if err := os.Rename(tmp, path); err != nil {
		return errors.WithStack(err)
	}

	return nil
}
