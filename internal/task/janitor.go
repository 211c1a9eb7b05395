package task

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	"github.com/bornholm/uitester/internal/slogx"
)

// ArtifactPurger removes the files a task left on disk.
type ArtifactPurger interface {
	RemoveTask(taskID string) error
}

type JanitorOptionFunc func(j *Janitor)

// WithArtifactPurger removes the artifacts of the evicted tasks along with
// their records.
func WithArtifactPurger(purger ArtifactPurger) JanitorOptionFunc {
	return func(j *Janitor) {
		j.purger = purger
	}
}

// Janitor periodically evicts the terminal records older than the
// retention from the registry.
type Janitor struct {
	registry  *Registry
	purger    ArtifactPurger
	retention time.Duration
	schedule  string
	now       func() time.Time
	cron      *cron.Cron
	logger    *slog.Logger
}

// Run schedules the sweeps and blocks until ctx is done.
func (j *Janitor) Run(ctx context.Context) error {
	if _, err := j.cron.AddFunc(j.schedule, func() { j.Sweep() }); err != nil {
		return errors.Wrapf(err, "invalid janitor schedule '%s'", j.schedule)
	}

	j.logger.InfoContext(ctx, "task janitor started", slog.String("schedule", j.schedule), slog.Duration("retention", j.retention))

	j.cron.Start()

	<-ctx.Done()

	<-j.cron.Stop().Done()

	j.logger.InfoContext(ctx, "task janitor stopped")

	return errors.WithStack(ctx.Err())
}

// Sweep evicts the expired records and returns their ids.
func (j *Janitor) Sweep() []string {
	evicted := j.registry.Evict(j.now().Add(-j.retention))

	if len(evicted) > 0 {
		tasksEvictedTotal.Add(float64(len(evicted)))
		j.logger.Info("evicted expired task records", slog.Int("count", len(evicted)), slog.Any("task_ids", evicted))
	}

	if j.purger != nil {
		for _, taskID := range evicted {
			if err := j.purger.RemoveTask(taskID); err != nil {
				j.logger.Warn("could not remove task artifacts", slog.String("task_id", taskID), slogx.Error(err))
			}
		}
	}

	return evicted
}

func NewJanitor(registry *Registry, retention time.Duration, schedule string, logger *slog.Logger, funcs ...JanitorOptionFunc) *Janitor {
	j := &Janitor{
		registry:  registry,
		retention: retention,
		schedule:  schedule,
		now:       time.Now,
		cron:      cron.New(),
		logger:    logger.With("component", "task-janitor"),
	}

	for _, fn := range funcs {
		fn(j)
	}

	return j
}
