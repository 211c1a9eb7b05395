package config

import "time"

type HTTP struct {
	BaseURL         string        `yaml:"base_url" env:"BASE_URL,expand"`
	Address         string        `yaml:"address" env:"ADDRESS,expand" validate:"required"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT" validate:"gte=0"`
	Metrics         bool          `yaml:"metrics" env:"METRICS"`
	Pprof           bool          `yaml:"pprof" env:"PPROF"`
}

func defaultHTTP() HTTP {
	return HTTP{
		BaseURL:         "/",
		Address:         ":3002",
		ShutdownTimeout: 30 * time.Second,
		Metrics:         true,
	}
}
