package store

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/glebarez/go-sqlite"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

var models = []any{
	&TaskRun{},
}

type Store struct {
	getDatabase func(ctx context.Context) (*gorm.DB, error)
}

func (s *Store) WithDatabase(ctx context.Context, fn func(ctx context.Context, db *gorm.DB) error) error {
	db, err := s.getDatabase(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	if err := fn(ctx, db.WithContext(ctx)); err != nil {
		return errors.WithStack(err)
	}

	return nil
}

// WithRetry runs fn in a transaction, retrying with an exponential backoff
// while it fails with one of the given sqlite error codes.
func (s *Store) WithRetry(ctx context.Context, fn func(ctx context.Context, db *gorm.DB) error, codes ...int) error {
	db, err := s.getDatabase(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 100 * time.Millisecond
	policy.MaxElapsedTime = 30 * time.Second

	retries := 0

	operation := func() error {
		err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := fn(ctx, tx); err != nil {
				return errors.WithStack(err)
			}

			return nil
		})
		if err == nil {
			return nil
		}

		var sqliteErr *sqlite.Error
		if !errors.As(err, &sqliteErr) || !slices.Contains(codes, sqliteErr.Code()) {
			return backoff.Permanent(errors.WithStack(err))
		}

		retries++

		slog.DebugContext(ctx, "transaction failed, will retry", slog.Int("retries", retries), slog.Any("error", errors.WithStack(err)))

		return errors.WithStack(err)
	}

	if err := backoff.Retry(operation, backoff.WithContext(policy, ctx)); err != nil {
		return errors.WithStack(err)
	}

	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.WithDatabase(ctx, func(ctx context.Context, db *gorm.DB) error {
		sqlDB, err := db.DB()
		if err != nil {
			return errors.WithStack(err)
		}

		return errors.WithStack(sqlDB.PingContext(ctx))
	})
}

func New(db *gorm.DB) *Store {
	return &Store{
		getDatabase: createGetDatabase(db),
	}
}

func createGetDatabase(db *gorm.DB) func(ctx context.Context) (*gorm.DB, error) {
	var (
		migrateOnce sync.Once
		migrateErr  error
	)

	return func(ctx context.Context) (*gorm.DB, error) {
		migrateOnce.Do(func() {
			if err := db.AutoMigrate(models...); err != nil {
				migrateErr = errors.WithStack(err)
				return
			}
		})
		if migrateErr != nil {
			return nil, errors.WithStack(migrateErr)
		}

		return db, nil
	}
}
