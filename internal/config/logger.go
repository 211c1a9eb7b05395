package config

import "log/slog"

type Logger struct {
	Level slog.Level `yaml:"level" env:"LEVEL,expand"`
}

func defaultLogger() Logger {
	return Logger{
		Level: slog.LevelInfo,
	}
}
