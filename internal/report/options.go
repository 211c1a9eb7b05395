package report

import (
	"log/slog"
	"time"
)

type Options struct {
	Logger              *slog.Logger
	TestCommand         []string
	TestTimeout         time.Duration
	Grace               time.Duration
	CompileCommand      []string
	CompileTimeout      time.Duration
	Clean               bool
	Compress            bool
	DiscardUncompressed bool
}

type OptionFunc func(opts *Options)

func NewOptions(funcs ...OptionFunc) *Options {
	opts := &Options{
		Logger: slog.Default(),
		TestCommand: []string{
			"python", "-m", "pytest", "{suite}",
			"--device_id={device_id}",
			"--task_id={task_id}",
			"--alluredir={raw_dir}",
			"-v", "--tb=short",
			"--timeout={timeout}",
		},
		TestTimeout:    time.Hour,
		Grace:          time.Minute,
		CompileCommand: []string{"allure", "generate", "{raw_dir}", "-o", "{report_dir}"},
		CompileTimeout: 5 * time.Minute,
		Clean:          true,
	}
	for _, fn := range funcs {
		fn(opts)
	}
	return opts
}

func WithLogger(logger *slog.Logger) OptionFunc {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

// WithTestCommand sets the suite execution command. Supported placeholders
// are {suite}, {suite_dir}, {device_id}, {task_id}, {raw_dir} and
// {timeout} (in seconds). The process is given timeout+grace to complete.
func WithTestCommand(command []string, timeout, grace time.Duration) OptionFunc {
	return func(opts *Options) {
		opts.TestCommand = command
		opts.TestTimeout = timeout
		opts.Grace = grace
	}
}

// WithCompileCommand sets the report compilation command. Supported
// placeholders are {raw_dir} and {report_dir}. When clean is set, --clean
// is appended.
func WithCompileCommand(command []string, timeout time.Duration, clean bool) OptionFunc {
	return func(opts *Options) {
		opts.CompileCommand = command
		opts.CompileTimeout = timeout
		opts.Clean = clean
	}
}

func WithCompression(enabled bool, discardUncompressed bool) OptionFunc {
	return func(opts *Options) {
		opts.Compress = enabled
		opts.DiscardUncompressed = discardUncompressed
	}
}
