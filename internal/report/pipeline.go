package report

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/bornholm/uitester/internal/file"
	"github.com/bornholm/uitester/internal/process"
	"github.com/bornholm/uitester/internal/slogx"
	"github.com/bornholm/uitester/internal/suite"
)

const (
	stagePrepare  = "prepare"
	stageExecute  = "execute"
	stageCompile  = "compile"
	stageCompress = "compress"
)

type Request struct {
	TaskID   string
	DeviceID string
	Suite    suite.Suite
}

// Result is the outcome of a pipeline run. It is never nil, even when Run
// returns an error.
type Result struct {
	Status      Outcome
	Reason      string
	ReturnCode  *int
	ReportPath  string
	ArchivePath string
	LogPath     string
	Layout      Layout
	Metadata    *Metadata
}

// Pipeline runs a suite and turns its raw results into a browsable report.
type Pipeline struct {
	workspace *file.Workspace
	executor  process.Executor
	opts      *Options
	logger    *slog.Logger
}

// Run executes the suite, compiles its report and optionally compresses
// it. Failures are reported through the returned result status; the error
// is only set for failures that prevented the suite from completing.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Result, error) {
	result := &Result{
		Status: OutcomeFailed,
		Reason: "pipeline interrupted",
	}

	taskDir, err := p.workspace.TaskPath(req.TaskID)
	if err != nil {
		result.Reason = Truncate(err.Error(), MaxMessageLength)
		return result, errors.WithStack(err)
	}

	ctx = slogx.WithAttrs(ctx,
		slog.String("task_id", req.TaskID),
		slog.String("device_id", req.DeviceID),
	)

	r := &run{
		pipeline: p,
		req:      req,
		result:   result,
		layout:   NewLayout(taskDir),
		metadata: &Metadata{
			TaskID:    req.TaskID,
			DeviceID:  req.DeviceID,
			Suite:     SuiteInfo{Name: req.Suite.Name, Path: req.Suite.AbsPath},
			StartedAt: time.Now(),
			Config:    p.snapshot(),
			Steps:     make([]*StepRecord, 0, 4),
			Sizes:     map[string]SizeInfo{},
		},
	}

	result.Layout = r.layout
	result.Metadata = r.metadata

	defer r.finalize(ctx)

	if err := r.prepare(ctx); err != nil {
		return result, errors.WithStack(err)
	}

	returnCode, err := r.execute(ctx)
	if err != nil {
		return result, errors.WithStack(err)
	}

	compileErr := r.compile(ctx)

	if compileErr == nil {
		result.ReportPath = r.layout.ReportDir
		r.compress(ctx)
	}

	if ctx.Err() != nil {
		r.fail("task canceled")
		return result, errors.WithStack(ctx.Err())
	}

	result.Status, result.Reason = Derive(returnCode, compileErr)

	return result, nil
}

func (p *Pipeline) snapshot() ConfigSnapshot {
	return ConfigSnapshot{
		TestTimeout:         p.opts.TestTimeout.String(),
		Grace:               p.opts.Grace.String(),
		CompileTimeout:      p.opts.CompileTimeout.String(),
		Clean:               p.opts.Clean,
		Compress:            p.opts.Compress,
		DiscardUncompressed: p.opts.DiscardUncompressed,
	}
}

type run struct {
	pipeline *Pipeline
	req      Request
	result   *Result
	layout   Layout
	metadata *Metadata
}

func (r *run) fail(reason string) {
	r.result.Status = OutcomeFailed
	r.result.Reason = Truncate(reason, MaxMessageLength)
}

func (r *run) step(name string) (*StepRecord, func()) {
	record := &StepRecord{Name: name, Status: StepOK}
	r.metadata.Steps = append(r.metadata.Steps, record)

	start := time.Now()

	return record, func() {
		elapsed := time.Since(start)
		record.DurationMS = elapsed.Milliseconds()
		stageDuration.WithLabelValues(name, string(record.Status)).Observe(elapsed.Seconds())
	}
}

func (r *run) prepare(ctx context.Context) error {
	step, done := r.step(stagePrepare)
	defer done()

	if err := r.pipeline.workspace.Reset(r.layout.Root, RawResultsDir, CompiledDir); err != nil {
		step.Status = StepFailed
		step.Error = err.Error()
		r.fail(fmt.Sprintf("could not prepare report directory: %s", err))
		return errors.WithStack(err)
	}

	if err := checkSuite(r.req.Suite.AbsPath); err != nil {
		step.Status = StepFailed
		step.Error = err.Error()
		r.fail(err.Error())
		return errors.WithStack(err)
	}

	r.pipeline.logger.DebugContext(ctx, "report directory prepared", slog.String("path", r.layout.Root))

	return nil
}

func checkSuite(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return errors.Wrapf(ErrSuiteNotFound, "'%s'", path)
		}

		if errors.Is(err, os.ErrPermission) {
			return errors.Wrapf(ErrSuitePermission, "'%s'", path)
		}

		return errors.WithStack(err)
	}

	if info.IsDir() {
		return errors.Wrapf(ErrSuiteNotFound, "'%s' is a directory", path)
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrPermission) {
			return errors.Wrapf(ErrSuitePermission, "'%s'", path)
		}

		return errors.WithStack(err)
	}

	return f.Close()
}

func (r *run) execute(ctx context.Context) (int, error) {
	step, done := r.step(stageExecute)
	defer done()

	opts := r.pipeline.opts

	command := process.Expand(opts.TestCommand, map[string]string{
		"suite":     r.req.Suite.AbsPath,
		"suite_dir": filepath.Dir(r.req.Suite.AbsPath),
		"device_id": r.req.DeviceID,
		"task_id":   r.req.TaskID,
		"raw_dir":   r.layout.RawDir,
		"timeout":   strconv.Itoa(int(opts.TestTimeout.Seconds())),
	})
	command.Dir = filepath.Dir(r.req.Suite.AbsPath)
	command.Timeout = opts.TestTimeout + opts.Grace

	step.Command = command.String()

	r.pipeline.logger.InfoContext(ctx, "executing suite", slog.String("suite", r.req.Suite.RelPath), slog.String("command", step.Command))

	started := time.Now()
	res, runErr := r.pipeline.executor.Run(ctx, command)

	if err := r.writeTaskLog(command, started, res, runErr); err != nil {
		r.pipeline.logger.ErrorContext(ctx, "could not write task log", slogx.Error(err))
	}

	r.result.LogPath = r.layout.TaskLog

	if runErr != nil {
		step.Status = StepFailed
		step.Error = Truncate(runErr.Error(), MaxMessageLength)

		var timeoutErr *process.TimeoutError
		switch {
		case errors.As(runErr, &timeoutErr):
			r.fail(fmt.Sprintf("suite execution timeout after %s (limit %s)", timeoutErr.Elapsed.Round(time.Second), timeoutErr.Timeout))
		case ctx.Err() != nil:
			r.fail("task canceled")
		default:
			r.fail(fmt.Sprintf("suite execution failed: %s", runErr))
		}

		r.pipeline.logger.ErrorContext(ctx, "suite execution failed", slogx.Error(runErr))

		return 0, errors.WithStack(runErr)
	}

	returnCode := res.ReturnCode
	step.ReturnCode = &returnCode
	r.result.ReturnCode = &returnCode
	r.metadata.ReturnCode = &returnCode

	if returnCode != 0 {
		step.Status = StepWarning
	}

	r.pipeline.logger.InfoContext(ctx, "suite executed", slog.Int("return_code", returnCode), slog.Duration("duration", res.Duration))

	return returnCode, nil
}

func (r *run) writeTaskLog(command process.Command, started time.Time, res *process.Result, runErr error) error {
	var sb strings.Builder

	fmt.Fprintf(&sb, "task_id: %s\n", r.req.TaskID)
	fmt.Fprintf(&sb, "device_id: %s\n", r.req.DeviceID)
	fmt.Fprintf(&sb, "suite: %s\n", r.req.Suite.AbsPath)
	fmt.Fprintf(&sb, "started_at: %s\n", started.Format(time.RFC3339))
	fmt.Fprintf(&sb, "command: %s\n", command)

	if res != nil {
		fmt.Fprintf(&sb, "return_code: %d\n", res.ReturnCode)
		fmt.Fprintf(&sb, "duration: %s\n", res.Duration.Round(time.Millisecond))
	}

	if runErr != nil {
		fmt.Fprintf(&sb, "error: %s\n", runErr)
	}

	if res != nil {
		sb.WriteString("\n--- stdout ---\n")
		sb.WriteString(res.Stdout)
		sb.WriteString("\n--- stderr ---\n")
		sb.WriteString(res.Stderr)
	}

	if err := os.WriteFile(r.layout.TaskLog, []byte(sb.String()), 0640); err != nil {
		return errors.Wrapf(err, "could not write '%s'", r.layout.TaskLog)
	}

	return nil
}

func (r *run) compile(ctx context.Context) error {
	step, done := r.step(stageCompile)
	defer done()

	opts := r.pipeline.opts

	empty, err := file.IsEmptyDir(r.layout.RawDir)
	if err != nil {
		r.pipeline.logger.WarnContext(ctx, "could not inspect raw results", slogx.Error(err))
	} else if empty {
		step.Status = StepWarning
		step.Error = "no raw results produced"
		r.pipeline.logger.WarnContext(ctx, "raw results directory is empty", slog.String("path", r.layout.RawDir))
	}

	template := opts.CompileCommand
	if opts.Clean {
		template = append(append([]string{}, template...), "--clean")
	}

	command := process.Expand(template, map[string]string{
		"raw_dir":    r.layout.RawDir,
		"report_dir": r.layout.ReportDir,
	})
	command.Timeout = opts.CompileTimeout

	step.Command = command.String()

	res, runErr := r.pipeline.executor.Run(ctx, command)

	if res != nil {
		log := fmt.Sprintf("command: %s\nreturn_code: %d\nduration: %s\n\n%s", command, res.ReturnCode, res.Duration.Round(time.Millisecond), res.Combined())
		if err := os.WriteFile(r.layout.CompileLog, []byte(log), 0640); err != nil {
			r.pipeline.logger.ErrorContext(ctx, "could not write compile log", slogx.Error(err))
		}

		returnCode := res.ReturnCode
		step.ReturnCode = &returnCode
	} else {
		log := fmt.Sprintf("command: %s\nerror: %v\n", command, runErr)
		if err := os.WriteFile(r.layout.CompileLog, []byte(log), 0640); err != nil {
			r.pipeline.logger.ErrorContext(ctx, "could not write compile log", slogx.Error(err))
		}
	}

	var compileErr *CompileError

	switch {
	case runErr != nil:
		compileErr = &CompileError{ReturnCode: -1, Reason: runErr.Error()}
		if res != nil {
			compileErr.Stderr = Truncate(res.Stderr, MaxMessageLength)
		}
	case res.ReturnCode != 0:
		compileErr = &CompileError{
			ReturnCode: res.ReturnCode,
			Reason:     fmt.Sprintf("exit code %d", res.ReturnCode),
			Stderr:     Truncate(strings.TrimSpace(res.Stderr), MaxMessageLength),
		}
	case !file.Exists(r.layout.Entry()):
		compileErr = &CompileError{
			ReturnCode: res.ReturnCode,
			Reason:     fmt.Sprintf("missing report entry '%s'", EntryFile),
		}
	}

	if compileErr != nil {
		step.Status = StepFailed
		step.Error = Truncate(compileErr.Error(), MaxMessageLength)

		r.pipeline.logger.ErrorContext(ctx, "report compilation failed", slogx.Error(compileErr))

		return compileErr
	}

	r.pipeline.logger.InfoContext(ctx, "report compiled", slog.String("path", r.layout.ReportDir))

	return nil
}

func (r *run) compress(ctx context.Context) {
	opts := r.pipeline.opts

	step, done := r.step(stageCompress)
	defer done()

	if !opts.Compress {
		step.Status = StepSkipped
		return
	}

	if err := Compress(r.layout.ReportDir, r.layout.Archive); err != nil {
		step.Status = StepWarning
		step.Error = Truncate(err.Error(), MaxMessageLength)
		r.pipeline.logger.WarnContext(ctx, "could not compress report", slogx.Error(err))
		return
	}

	r.result.ArchivePath = r.layout.Archive

	if opts.DiscardUncompressed {
		if err := os.RemoveAll(r.layout.ReportDir); err != nil {
			r.pipeline.logger.WarnContext(ctx, "could not discard uncompressed report", slogx.Error(err))
		} else {
			r.result.ReportPath = ""
		}
	}

	r.pipeline.logger.InfoContext(ctx, "report compressed", slog.String("path", r.layout.Archive))
}

// finalize persists the run record. It runs on every exit path of Run.
func (r *run) finalize(ctx context.Context) {
	if recovered := recover(); recovered != nil {
		r.fail(fmt.Sprintf("unexpected error: %v", recovered))
		defer panic(recovered)
	}

	r.metadata.Status = r.result.Status
	r.metadata.Reason = r.result.Reason
	r.metadata.FinishedAt = time.Now()
	r.metadata.Duration = r.metadata.FinishedAt.Sub(r.metadata.StartedAt).Round(time.Millisecond).String()

	for name, dir := range map[string]string{RawResultsDir: r.layout.RawDir, CompiledDir: r.layout.ReportDir} {
		stats, err := file.Stats(dir)
		if err != nil {
			r.pipeline.logger.WarnContext(ctx, "could not compute directory size", slog.String("path", dir), slogx.Error(err))
			continue
		}

		r.metadata.Sizes[name] = newSizeInfo(stats)
	}

	if info, err := os.Stat(r.layout.Archive); err == nil {
		r.metadata.Sizes[ArchiveFile] = newSizeInfo(&file.StorageStats{TotalSize: info.Size(), FileCount: 1})
	}

	pipelineRunsTotal.WithLabelValues(string(r.result.Status)).Inc()

	if _, err := os.Stat(r.layout.Root); err != nil {
		r.pipeline.logger.WarnContext(ctx, "report directory missing, metadata not persisted", slog.String("path", r.layout.Root))
		return
	}

	if err := writeMetadata(r.layout.Metadata, r.metadata); err != nil {
		r.pipeline.logger.ErrorContext(ctx, "could not write metadata", slogx.Error(err))
	}

	if err := writeSummary(r.layout.Summary, r.metadata); err != nil {
		r.pipeline.logger.ErrorContext(ctx, "could not write summary", slogx.Error(err))
	}
}

func NewPipeline(workspace *file.Workspace, executor process.Executor, funcs ...OptionFunc) *Pipeline {
	opts := NewOptions(funcs...)
	return &Pipeline{
		workspace: workspace,
		executor:  executor,
		opts:      opts,
		logger:    opts.Logger.With("component", "report-pipeline"),
	}
}
