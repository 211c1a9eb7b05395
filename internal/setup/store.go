package setup

import (
	"context"
	"log/slog"
	"time"

	"github.com/bornholm/uitester/internal/config"
	"github.com/bornholm/uitester/internal/store"
	"github.com/bornholm/uitester/internal/store/repository/run"
	"github.com/pkg/errors"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var getStoreFromConfig = createFromConfigOnce(func(ctx context.Context, conf *config.Config) (*store.Store, error) {
	if err := ensureBaseDirectory(conf.Storage.Database.DSN); err != nil {
		return nil, errors.WithStack(err)
	}

	dialector := sqlite.Open(conf.Storage.Database.DSN)

	logLevel := logger.Error
	if conf.Logger.Level <= slog.LevelWarn {
		logLevel = logger.Warn
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, errors.WithStack(err)
	}

	if conf.Logger.Level <= slog.LevelDebug {
		db = db.Debug()
	}

	internalDB, err := db.DB()
	if err != nil {
		return nil, errors.WithStack(err)
	}

	internalDB.SetMaxOpenConns(1)
	internalDB.SetConnMaxIdleTime(10 * time.Minute)

	if err := db.Exec("PRAGMA journal_mode=wal; PRAGMA busy_timeout=30000").Error; err != nil {
		return nil, errors.WithStack(err)
	}

	return store.New(db), nil
})

var getRunRepositoryFromConfig = createFromConfigOnce(func(ctx context.Context, conf *config.Config) (*run.Repository, error) {
	store, err := getStoreFromConfig(ctx, conf)
	if err != nil {
		return nil, errors.Wrap(err, "could not configure store from config")
	}

	return run.NewRepository(store), nil
})
