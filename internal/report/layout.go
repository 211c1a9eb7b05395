package report

import "path/filepath"

const (
	RawResultsDir  = "raw_results"
	CompiledDir    = "compiled_report"
	TaskLogFile    = "task.log"
	CompileLogFile = "compile.log"
	MetadataFile   = "metadata.json"
	ArchiveFile    = "report.zip"
	SummaryFile    = "summary.html"
	EntryFile      = "index.html"
)

// Layout lists the artifacts of one task under report_root/<task_id>.
type Layout struct {
	Root       string `json:"root"`
	RawDir     string `json:"raw_dir"`
	ReportDir  string `json:"report_dir"`
	TaskLog    string `json:"task_log"`
	CompileLog string `json:"compile_log"`
	Metadata   string `json:"metadata"`
	Archive    string `json:"archive"`
	Summary    string `json:"summary"`
}

func NewLayout(taskDir string) Layout {
	return Layout{
		Root:       taskDir,
		RawDir:     filepath.Join(taskDir, RawResultsDir),
		ReportDir:  filepath.Join(taskDir, CompiledDir),
		TaskLog:    filepath.Join(taskDir, TaskLogFile),
		CompileLog: filepath.Join(taskDir, CompileLogFile),
		Metadata:   filepath.Join(taskDir, MetadataFile),
		Archive:    filepath.Join(taskDir, ArchiveFile),
		Summary:    filepath.Join(taskDir, SummaryFile),
	}
}

func (l Layout) Entry() string {
	return filepath.Join(l.ReportDir, EntryFile)
}
