package config

type Path struct {
	TestSuiteDir  string `yaml:"test_suite_dir" env:"TEST_SUITE_DIR,expand" validate:"required"`
	ReportRootDir string `yaml:"report_root_dir" env:"REPORT_ROOT_DIR,expand" validate:"required"`
	LogRootDir    string `yaml:"log_root_dir" env:"LOG_ROOT_DIR,expand" validate:"required"`
}

func defaultPath() Path {
	return Path{
		TestSuiteDir:  "test_suite",
		ReportRootDir: "result",
		LogRootDir:    "logs",
	}
}

type Storage struct {
	Database Database `yaml:"database" envPrefix:"DATABASE_"`
}

type Database struct {
	DSN string `yaml:"dsn" env:"DSN,expand" validate:"required"`
}

func defaultStorage() Storage {
	return Storage{
		Database: Database{
			DSN: "data/uitester.sqlite",
		},
	}
}
