package setup

import (
	"context"
	"log/slog"

	"github.com/bornholm/uitester/internal/config"
	"github.com/bornholm/uitester/internal/report"
	"github.com/pkg/errors"
)

var getReportPipelineFromConfig = createFromConfigOnce(func(ctx context.Context, conf *config.Config) (*report.Pipeline, error) {
	workspace, err := getWorkspaceFromConfig(ctx, conf)
	if err != nil {
		return nil, errors.Wrap(err, "could not configure report workspace")
	}

	runner, err := getProcessRunnerFromConfig(ctx, conf)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return report.NewPipeline(workspace, runner,
		report.WithLogger(slog.Default()),
		report.WithTestCommand(conf.Test.Command, conf.Test.Timeout, conf.Test.Grace),
		report.WithCompileCommand(conf.Test.CompileCommand, conf.Test.CompileTimeout, conf.Test.Clean),
		report.WithCompression(conf.Test.Compress, conf.Test.DiscardUncompressed),
	), nil
})
