package setup

import (
	"context"
	"log/slog"

	"github.com/bornholm/uitester/internal/config"
	"github.com/bornholm/uitester/internal/file"
	"github.com/pkg/errors"
)

var getWorkspaceFromConfig = createFromConfigOnce(func(ctx context.Context, conf *config.Config) (*file.Workspace, error) {
	if err := ensureDirectory(conf.Path.ReportRootDir); err != nil {
		return nil, errors.WithStack(err)
	}

	return file.NewWorkspace(conf.Path.ReportRootDir, slog.Default()), nil
})
