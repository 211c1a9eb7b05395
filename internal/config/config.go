package config

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

const (
	EnvPrefix   = "UITESTER_"
	DefaultFile = "conf/config.yaml"
)

type Config struct {
	Logger  Logger  `yaml:"logger" envPrefix:"LOGGER_"`
	HTTP    HTTP    `yaml:"web" envPrefix:"HTTP_"`
	Path    Path    `yaml:"path" envPrefix:"PATH_"`
	Storage Storage `yaml:"storage" envPrefix:"STORAGE_"`
	Device  Device  `yaml:"device" envPrefix:"DEVICE_"`
	Test    Test    `yaml:"test" envPrefix:"TEST_"`
	Task    Task    `yaml:"task" envPrefix:"TASK_"`
}

// legacy holds the unprefixed variables still honored for compatibility
// with existing deployments.
type legacy struct {
	TestSuiteDir  string `env:"TEST_SUITE_DIR"`
	ReportRootDir string `env:"REPORT_ROOT_DIR"`
	WebPort       string `env:"WEB_PORT"`
}

func Default() Config {
	return Config{
		Logger:  defaultLogger(),
		HTTP:    defaultHTTP(),
		Path:    defaultPath(),
		Storage: defaultStorage(),
		Device:  defaultDevice(),
		Test:    defaultTest(),
		Task:    defaultTask(),
	}
}

// Parse loads the file referenced by UITESTER_CONFIG, or the default
// configuration file when present, then applies environment overrides.
func Parse() (*Config, error) {
	path, explicit := os.LookupEnv(EnvPrefix + "CONFIG")
	if !explicit {
		path = DefaultFile
	}

	conf, err := Load(path, !explicit)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return conf, nil
}

func Load(path string, optional bool) (*Config, error) {
	conf := Default()

	if path != "" {
		if err := loadFile(path, &conf); err != nil {
			if !optional || !errors.Is(err, os.ErrNotExist) {
				return nil, errors.WithStack(err)
			}
		}
	}

	if err := env.ParseWithOptions(&conf, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, errors.WithStack(err)
	}

	legacyEnv, err := env.ParseAs[legacy]()
	if err != nil {
		return nil, errors.WithStack(err)
	}

	applyLegacy(&conf, legacyEnv)

	if err := conf.resolvePaths(); err != nil {
		return nil, errors.WithStack(err)
	}

	if err := Validate(&conf); err != nil {
		return nil, errors.WithStack(err)
	}

	return &conf, nil
}

func loadFile(path string, conf *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.WithStack(err)
	}

	if err := yaml.Unmarshal(data, conf); err != nil {
		return errors.Wrapf(err, "could not parse configuration file '%s'", path)
	}

	return nil
}

func applyLegacy(conf *Config, l legacy) {
	if l.TestSuiteDir != "" {
		conf.Path.TestSuiteDir = l.TestSuiteDir
	}

	if l.ReportRootDir != "" {
		conf.Path.ReportRootDir = l.ReportRootDir
	}

	if l.WebPort != "" {
		conf.HTTP.Address = ":" + l.WebPort
	}
}

func (c *Config) resolvePaths() error {
	paths := []*string{
		&c.Path.TestSuiteDir,
		&c.Path.ReportRootDir,
		&c.Path.LogRootDir,
	}

	for _, p := range paths {
		if *p == "" || filepath.IsAbs(*p) {
			continue
		}

		abs, err := filepath.Abs(*p)
		if err != nil {
			return errors.Wrapf(err, "could not resolve path '%s'", *p)
		}

		*p = abs
	}

	return nil
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
	validateErr  error
)

func newValidator() (*validator.Validate, error) {
	v := validator.New()

	err := v.RegisterValidation("cron", func(fl validator.FieldLevel) bool {
		_, err := cron.ParseStandard(fl.Field().String())
		return err == nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "could not register 'cron' validation")
	}

	return v, nil
}

func Validate(conf *Config) error {
	validateOnce.Do(func() {
		validate, validateErr = newValidator()
	})
	if validateErr != nil {
		return errors.WithStack(validateErr)
	}

	if err := validate.Struct(conf); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) && len(validationErrors) > 0 {
			first := validationErrors[0]
			return errors.Errorf("invalid configuration: field '%s' failed on the '%s' tag", first.Namespace(), first.Tag())
		}

		return errors.WithStack(err)
	}

	return nil
}
