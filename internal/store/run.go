package store

import (
	"time"

	"gorm.io/gorm"
)

// TaskRun is the persisted record of a terminated task.
type TaskRun struct {
	gorm.Model

	TaskID   string `gorm:"uniqueIndex"`
	DeviceID string `gorm:"index"`

	SuiteID      int
	SuiteName    string
	SuiteAbsPath string
	SuiteRelPath string

	State        string `gorm:"index"`
	Status       string
	ErrorMessage string `gorm:"type:text"`
	ReturnCode   *int

	ReportPath  string
	ArchivePath string
	LogPath     string

	QueuedAt   time.Time `gorm:"index"`
	StartedAt  *time.Time
	FinishedAt *time.Time
}
