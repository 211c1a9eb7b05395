package setup

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/bornholm/uitester/internal/config"
	"github.com/pkg/errors"
)

// createFromConfigOnce memoizes a factory: every component is built once
// per configuration and shared by the ones depending on it.
func createFromConfigOnce[T any](factory func(ctx context.Context, conf *config.Config) (T, error)) func(ctx context.Context, conf *config.Config) (T, error) {
	type entry struct {
		once    sync.Once
		service T
		err     error
	}

	var (
		mutex   sync.Mutex
		entries = map[*config.Config]*entry{}
	)

	return func(ctx context.Context, conf *config.Config) (T, error) {
		mutex.Lock()
		e, exists := entries[conf]
		if !exists {
			e = &entry{}
			entries[conf] = e
		}
		mutex.Unlock()

		e.once.Do(func() {
			srv, err := factory(ctx, conf)
			if err != nil {
				e.err = errors.WithStack(err)
				return
			}

			e.service = srv
		})
		if e.err != nil {
			return *new(T), e.err
		}

		return e.service, nil
	}
}

func ensureDirectory(dirPath string) error {
	if err := os.MkdirAll(dirPath, 0750); err != nil {
		return errors.Wrapf(err, "could not ensure directory '%s'", dirPath)
	}

	return nil
}

func ensureBaseDirectory(filePath string) error {
	if err := ensureDirectory(filepath.Dir(filePath)); err != nil {
		return errors.WithStack(err)
	}

	return nil
}
