package run

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/bornholm/uitester/internal/store"
	"github.com/bornholm/uitester/internal/suite"
	"github.com/bornholm/uitester/internal/task"
)

func newTestRepository(t *testing.T) *Repository {
	dsn := filepath.Join(t.TempDir(), "test.sqlite")

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	return NewRepository(store.New(db))
}

func newSnapshot(id string, createdAt time.Time, state task.State, status string) task.Snapshot {
	end := createdAt.Add(time.Minute)
	returnCode := 1

	return task.Snapshot{
		TaskID:     id,
		DeviceID:   "emulator-5554",
		Suite:      suite.Suite{ID: 1, Name: "pay.py", AbsPath: "/suites/wallet/pay.py", RelPath: "wallet/pay.py"},
		Status:     status,
		State:      state,
		CreateTime: createdAt,
		StartTime:  &createdAt,
		EndTime:    &end,
		ReportPath: "/reports/" + id + "/compiled_report",
		LogPath:    "/reports/" + id + "/task.log",
		ReturnCode: &returnCode,
	}
}

func TestRepositoryRecordAndFind(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	base := time.Date(2024, 5, 20, 14, 30, 0, 0, time.UTC)

	snapshot := newSnapshot("20240520143000_ab12", base, task.StateSuccessWithFailure, "success_with_failure")

	if err := repo.Record(ctx, snapshot); err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}

	found, err := repo.Find(ctx, snapshot.TaskID)
	if err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}

	if found.State != task.StateSuccessWithFailure || found.Status != "success_with_failure" {
		t.Errorf("status: expected success_with_failure, got '%s' (%s)", found.Status, found.State)
	}

	if found.Suite.RelPath != "wallet/pay.py" {
		t.Errorf("suite: expected 'wallet/pay.py', got '%s'", found.Suite.RelPath)
	}

	if found.ReturnCode == nil || *found.ReturnCode != 1 {
		t.Errorf("return code: expected 1, got %v", found.ReturnCode)
	}

	if found.EndTime == nil || !found.EndTime.Equal(*snapshot.EndTime) {
		t.Errorf("end time: expected %s, got %v", snapshot.EndTime, found.EndTime)
	}

	// Recording the same task again replaces the run.
	snapshot.State = task.StateFailed
	snapshot.Status = "failed: device unreachable"
	snapshot.ErrorMsg = "device unreachable"

	if err := repo.Record(ctx, snapshot); err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}

	found, err = repo.Find(ctx, snapshot.TaskID)
	if err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}

	if found.Status != "failed: device unreachable" || found.ErrorMsg != "device unreachable" {
		t.Errorf("status: expected the replaced run, got '%s' / '%s'", found.Status, found.ErrorMsg)
	}

	if _, err := repo.Find(ctx, "20240520143000_0000"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %+v", err)
	}
}

func TestRepositoryList(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	base := time.Date(2024, 5, 20, 14, 30, 0, 0, time.UTC)

	ids := []string{"20240520143000_0001", "20240520143100_0002", "20240520143200_0003"}

	for i, id := range ids {
		if err := repo.Record(ctx, newSnapshot(id, base.Add(time.Duration(i)*time.Minute), task.StateSuccess, "success")); err != nil {
			t.Fatalf("%+v", errors.WithStack(err))
		}
	}

	runs, total, err := repo.List(ctx, 2, 0)
	if err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}

	if total != 3 {
		t.Errorf("total: expected 3, got %d", total)
	}

	if len(runs) != 2 || runs[0].TaskID != ids[2] || runs[1].TaskID != ids[1] {
		t.Errorf("first page: expected most recent runs first, got %+v", runs)
	}

	runs, _, err = repo.List(ctx, 2, 2)
	if err != nil {
		t.Fatalf("%+v", errors.WithStack(err))
	}

	if len(runs) != 1 || runs[0].TaskID != ids[0] {
		t.Errorf("second page: expected ['%s'], got %+v", ids[0], runs)
	}
}
