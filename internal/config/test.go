package config

import "time"

type Test struct {
	Command             []string      `yaml:"command" env:"COMMAND" envSeparator:"," validate:"required,min=1"`
	Timeout             time.Duration `yaml:"timeout" env:"TIMEOUT" validate:"gt=0"`
	Grace               time.Duration `yaml:"grace" env:"GRACE" validate:"gte=0"`
	CompileCommand      []string      `yaml:"compile_command" env:"COMPILE_COMMAND" envSeparator:"," validate:"required,min=1"`
	CompileTimeout      time.Duration `yaml:"compile_timeout" env:"COMPILE_TIMEOUT" validate:"gt=0"`
	Clean               bool          `yaml:"clean" env:"CLEAN"`
	Compress            bool          `yaml:"compress" env:"COMPRESS"`
	DiscardUncompressed bool          `yaml:"discard_uncompressed" env:"DISCARD_UNCOMPRESSED"`
}

func defaultTest() Test {
	return Test{
		Command: []string{
			"python", "-m", "pytest", "{suite}",
			"--device_id={device_id}",
			"--task_id={task_id}",
			"--alluredir={raw_dir}",
			"-v", "--tb=short",
			"--timeout={timeout}",
		},
		Timeout:        time.Hour,
		Grace:          time.Minute,
		CompileCommand: []string{"allure", "generate", "{raw_dir}", "-o", "{report_dir}"},
		CompileTimeout: 5 * time.Minute,
		Clean:          true,
	}
}

type Task struct {
	Retention       time.Duration `yaml:"retention" env:"RETENTION" validate:"gte=0"`
	JanitorSchedule string        `yaml:"janitor_schedule" env:"JANITOR_SCHEDULE" validate:"required,cron"`
	PurgeArtifacts  bool          `yaml:"purge_artifacts" env:"PURGE_ARTIFACTS"`
}

func defaultTask() Task {
	return Task{
		JanitorSchedule: "@every 10m",
	}
}
