package setup

import (
	"context"
	"log/slog"

	"github.com/bornholm/uitester/internal/config"
	"github.com/bornholm/uitester/internal/suite"
	"github.com/pkg/errors"
)

var getSuiteCatalogFromConfig = createFromConfigOnce(func(ctx context.Context, conf *config.Config) (*suite.Catalog, error) {
	if err := ensureDirectory(conf.Path.TestSuiteDir); err != nil {
		return nil, errors.WithStack(err)
	}

	return suite.NewCatalog(conf.Path.TestSuiteDir, slog.Default()), nil
})
