package config

import "time"

type Device struct {
	ADBPath           string        `yaml:"adb_path" env:"ADB_PATH,expand" validate:"required"`
	AgentPath         string        `yaml:"agent_path" env:"AGENT_PATH,expand" validate:"required"`
	InitCommand       []string      `yaml:"init_command" env:"INIT_COMMAND" envSeparator:"," validate:"required,min=1"`
	InitSuccessMarker string        `yaml:"init_success_marker" env:"INIT_SUCCESS_MARKER"`
	InitTimeout       time.Duration `yaml:"init_timeout" env:"INIT_TIMEOUT" validate:"gt=0"`
	InitAttempts      int           `yaml:"init_attempts" env:"INIT_ATTEMPTS" validate:"min=1"`
	InitBackoff       time.Duration `yaml:"init_backoff" env:"INIT_BACKOFF" validate:"gte=0"`
	VersionConstraint string        `yaml:"version_constraint" env:"VERSION_CONSTRAINT" validate:"required"`
	VersionAttempts   int           `yaml:"version_attempts" env:"VERSION_ATTEMPTS" validate:"min=1"`
	VersionBackoff    time.Duration `yaml:"version_backoff" env:"VERSION_BACKOFF" validate:"gte=0"`
	ProbeTimeout      time.Duration `yaml:"probe_timeout" env:"PROBE_TIMEOUT" validate:"gt=0"`
	WakeScreen        bool          `yaml:"wake_screen" env:"WAKE_SCREEN"`
}

func defaultDevice() Device {
	return Device{
		ADBPath:           "adb",
		AgentPath:         "/data/local/tmp/atx-agent",
		InitCommand:       []string{"python", "-m", "uiautomator2", "init", "{device_id}"},
		InitSuccessMarker: "Successfully init",
		InitTimeout:       2 * time.Minute,
		InitAttempts:      3,
		InitBackoff:       2 * time.Second,
		VersionConstraint: ">= 0.9.0",
		VersionAttempts:   3,
		VersionBackoff:    time.Second,
		ProbeTimeout:      5 * time.Second,
		WakeScreen:        true,
	}
}
