package run

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/bornholm/uitester/internal/store"
	"github.com/bornholm/uitester/internal/suite"
	"github.com/bornholm/uitester/internal/task"
)

var ErrNotFound = errors.New("task run not found")

// sqlite busy and locked result codes
var retryCodes = []int{5, 6}

// Record inserts or replaces the run of the snapshot task.
func (r *Repository) Record(ctx context.Context, snapshot task.Snapshot) error {
	run := fromSnapshot(snapshot)

	return r.store.WithRetry(ctx, func(ctx context.Context, db *gorm.DB) error {
		err := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "task_id"}},
			UpdateAll: true,
		}).Create(run).Error
		if err != nil {
			return errors.WithStack(err)
		}

		return nil
	}, retryCodes...)
}

// Find returns the snapshot of a persisted run.
func (r *Repository) Find(ctx context.Context, taskID string) (*task.Snapshot, error) {
	var run store.TaskRun

	err := r.store.WithDatabase(ctx, func(ctx context.Context, db *gorm.DB) error {
		if err := db.Where("task_id = ?", taskID).First(&run).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errors.Wrapf(ErrNotFound, "task '%s'", taskID)
			}

			return errors.WithStack(err)
		}

		return nil
	})
	if err != nil {
		return nil, errors.WithStack(err)
	}

	snapshot := toSnapshot(&run)

	return &snapshot, nil
}

// List returns the persisted runs, most recent first, along with the total
// number of runs.
func (r *Repository) List(ctx context.Context, limit, offset int) ([]task.Snapshot, int64, error) {
	var (
		runs  []*store.TaskRun
		total int64
	)

	err := r.store.WithDatabase(ctx, func(ctx context.Context, db *gorm.DB) error {
		if err := db.Model(&store.TaskRun{}).Count(&total).Error; err != nil {
			return errors.WithStack(err)
		}

		query := db.Order("queued_at DESC").Order("task_id DESC")
		if limit > 0 {
			query = query.Limit(limit)
		}
		if offset > 0 {
			query = query.Offset(offset)
		}

		if err := query.Find(&runs).Error; err != nil {
			return errors.WithStack(err)
		}

		return nil
	})
	if err != nil {
		return nil, 0, errors.WithStack(err)
	}

	snapshots := make([]task.Snapshot, 0, len(runs))
	for _, run := range runs {
		snapshots = append(snapshots, toSnapshot(run))
	}

	return snapshots, total, nil
}

func fromSnapshot(snapshot task.Snapshot) *store.TaskRun {
	return &store.TaskRun{
		TaskID:       snapshot.TaskID,
		DeviceID:     snapshot.DeviceID,
		SuiteID:      snapshot.Suite.ID,
		SuiteName:    snapshot.Suite.Name,
		SuiteAbsPath: snapshot.Suite.AbsPath,
		SuiteRelPath: snapshot.Suite.RelPath,
		State:        string(snapshot.State),
		Status:       snapshot.Status,
		ErrorMessage: snapshot.ErrorMsg,
		ReturnCode:   snapshot.ReturnCode,
		ReportPath:   snapshot.ReportPath,
		ArchivePath:  snapshot.ArchivePath,
		LogPath:      snapshot.LogPath,
		QueuedAt:     snapshot.CreateTime,
		StartedAt:    snapshot.StartTime,
		FinishedAt:   snapshot.EndTime,
	}
}

func toSnapshot(run *store.TaskRun) task.Snapshot {
	return task.Snapshot{
		TaskID:   run.TaskID,
		DeviceID: run.DeviceID,
		Suite: suite.Suite{
			ID:      run.SuiteID,
			Name:    run.SuiteName,
			AbsPath: run.SuiteAbsPath,
			RelPath: run.SuiteRelPath,
		},
		Status:      run.Status,
		State:       task.State(run.State),
		CreateTime:  run.QueuedAt,
		StartTime:   run.StartedAt,
		EndTime:     run.FinishedAt,
		ReportPath:  run.ReportPath,
		ArchivePath: run.ArchivePath,
		LogPath:     run.LogPath,
		ErrorMsg:    run.ErrorMessage,
		ReturnCode:  run.ReturnCode,
	}
}

var _ task.History = &Repository{}
