package device

import (
	"log/slog"
	"time"
)

type ADBOptions struct {
	Path         string
	AgentPath    string
	InitCommand  []string
	InitTimeout  time.Duration
	ProbeTimeout time.Duration
}

type ADBOptionFunc func(opts *ADBOptions)

func NewADBOptions(funcs ...ADBOptionFunc) *ADBOptions {
	opts := &ADBOptions{
		Path:         "adb",
		AgentPath:    "/data/local/tmp/atx-agent",
		InitCommand:  []string{"python", "-m", "uiautomator2", "init", "{device_id}"},
		InitTimeout:  2 * time.Minute,
		ProbeTimeout: 5 * time.Second,
	}
	for _, fn := range funcs {
		fn(opts)
	}
	return opts
}

func WithADBPath(path string) ADBOptionFunc {
	return func(opts *ADBOptions) {
		opts.Path = path
	}
}

func WithAgentPath(path string) ADBOptionFunc {
	return func(opts *ADBOptions) {
		opts.AgentPath = path
	}
}

// WithInitCommand sets the agent install/start command. The {device_id}
// and {adb} placeholders are expanded.
func WithInitCommand(command []string, timeout time.Duration) ADBOptionFunc {
	return func(opts *ADBOptions) {
		opts.InitCommand = command
		opts.InitTimeout = timeout
	}
}

func WithProbeTimeout(timeout time.Duration) ADBOptionFunc {
	return func(opts *ADBOptions) {
		opts.ProbeTimeout = timeout
	}
}

type BringUpOptions struct {
	Logger            *slog.Logger
	InitAttempts      int
	InitBackoff       time.Duration
	InitSuccessMarker string
	VersionConstraint string
	VersionAttempts   int
	VersionBackoff    time.Duration
}

type BringUpOptionFunc func(opts *BringUpOptions)

func NewBringUpOptions(funcs ...BringUpOptionFunc) *BringUpOptions {
	opts := &BringUpOptions{
		Logger:            slog.Default(),
		InitAttempts:      3,
		InitBackoff:       2 * time.Second,
		InitSuccessMarker: "",
		VersionConstraint: "*",
		VersionAttempts:   3,
		VersionBackoff:    time.Second,
	}
	for _, fn := range funcs {
		fn(opts)
	}
	return opts
}

func WithBringUpLogger(logger *slog.Logger) BringUpOptionFunc {
	return func(opts *BringUpOptions) {
		opts.Logger = logger
	}
}

func WithInitRetry(attempts int, backoff time.Duration) BringUpOptionFunc {
	return func(opts *BringUpOptions) {
		opts.InitAttempts = attempts
		opts.InitBackoff = backoff
	}
}

// WithInitSuccessMarker sets the text expected in the agent start output.
// An empty marker only checks the exit code.
func WithInitSuccessMarker(marker string) BringUpOptionFunc {
	return func(opts *BringUpOptions) {
		opts.InitSuccessMarker = marker
	}
}

func WithVersionCheck(constraint string, attempts int, backoff time.Duration) BringUpOptionFunc {
	return func(opts *BringUpOptions) {
		opts.VersionConstraint = constraint
		opts.VersionAttempts = attempts
		opts.VersionBackoff = backoff
	}
}
