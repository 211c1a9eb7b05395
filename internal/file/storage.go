package file

import (
	"io"
	"io/fs"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/pkg/errors"
)

var (
	ErrForbiddenPath = errors.New("path escapes its root directory")
	ErrInvalidName   = errors.New("invalid name")
)

// Workspace manages the per-task directories under the report root.
type Workspace struct {
	basePath string
	logger   *slog.Logger
}

func NewWorkspace(basePath string, logger *slog.Logger) *Workspace {
	return &Workspace{
		basePath: basePath,
		logger:   logger.With("component", "file-workspace"),
	}
}

func (w *Workspace) BasePath() string {
	return w.basePath
}

// TaskPath returns the directory of a task. The task id must be a single
// path element.
func (w *Workspace) TaskPath(taskID string) (string, error) {
	if taskID == "" || taskID == "." || taskID == ".." || strings.ContainsAny(taskID, `/\`) {
		return "", errors.Wrapf(ErrInvalidName, "task id '%s'", taskID)
	}

	return filepath.Join(w.basePath, taskID), nil
}

// Reset removes the directory when it exists and recreates it empty along
// with the given sub directories.
func (w *Workspace) Reset(dir string, subdirs ...string) error {
	if err := os.RemoveAll(dir); err != nil {
		return errors.Wrapf(err, "failed to remove directory %s", dir)
	}

	if err := os.MkdirAll(dir, 0750); err != nil {
		return errors.Wrapf(err, "failed to create directory %s", dir)
	}

	for _, subdir := range subdirs {
		path := filepath.Join(dir, subdir)
		if err := os.MkdirAll(path, 0750); err != nil {
			return errors.Wrapf(err, "failed to create directory %s", path)
		}
	}

	w.logger.Debug("directory reset", "path", dir)

	return nil
}

func (w *Workspace) RemoveTask(taskID string) error {
	taskPath, err := w.TaskPath(taskID)
	if err != nil {
		return errors.WithStack(err)
	}

	if err := os.RemoveAll(taskPath); err != nil {
		return errors.Wrapf(err, "failed to delete task directory %s", taskPath)
	}

	w.logger.Info("deleted task directory", "task_id", taskID, "path", taskPath)

	return nil
}

// SafeJoin resolves rel under root and fails with ErrForbiddenPath when the
// result, symbolic links included, lies outside of root.
func SafeJoin(root, rel string) (string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", errors.WithStack(err)
	}

	joined := filepath.Join(absRoot, filepath.FromSlash(rel))

	if !isWithin(absRoot, joined) {
		return "", errors.Wrapf(ErrForbiddenPath, "'%s'", rel)
	}

	resolvedRoot, err := filepath.EvalSymlinks(absRoot)
	if err != nil {
		// Nothing to resolve against, the lexical check is all we have
		return joined, nil
	}

	if !isWithin(resolvedRoot, resolveExisting(joined)) {
		return "", errors.Wrapf(ErrForbiddenPath, "'%s'", rel)
	}

	return joined, nil
}

// resolveExisting evaluates the symbolic links of the longest existing
// prefix of path.
func resolveExisting(path string) string {
	suffix := ""
	current := path

	for {
		resolved, err := filepath.EvalSymlinks(current)
		if err == nil {
			return filepath.Join(resolved, suffix)
		}

		parent := filepath.Dir(current)
		if parent == current {
			return path
		}

		suffix = filepath.Join(filepath.Base(current), suffix)
		current = parent
	}
}

func isWithin(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}

	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

// Stats returns the cumulated size and file count of a directory tree. A
// missing directory has empty stats.
func Stats(dir string) (*StorageStats, error) {
	stats := &StorageStats{}

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return errors.WithStack(err)
		}

		if d.IsDir() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return errors.WithStack(err)
		}

		stats.TotalSize += info.Size()
		stats.FileCount++

		return nil
	})
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return stats, nil
		}

		return nil, errors.Wrapf(err, "failed to calculate storage stats for %s", dir)
	}

	return stats, nil
}

// IsEmptyDir reports whether the directory has no entry. A missing
// directory is empty.
func IsEmptyDir(dir string) (bool, error) {
	f, err := os.Open(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return true, nil
		}
		return false, errors.WithStack(err)
	}
	defer f.Close()

	_, err = f.Readdirnames(1)
	if errors.Is(err, io.EOF) {
		return true, nil
	}
	if err != nil {
		return false, errors.WithStack(err)
	}

	return false, nil
}

// Exists reports whether a regular file exists at the given path.
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// DetectMimeType favors the file extension, which is reliable for the
// text assets of compiled reports, and sniffs the content otherwise.
func DetectMimeType(path string) string {
	if byExt := mime.TypeByExtension(filepath.Ext(path)); byExt != "" {
		return byExt
	}

	detected, err := mimetype.DetectFile(path)
	if err != nil {
		return "application/octet-stream"
	}

	return detected.String()
}

type StorageStats struct {
	TotalSize int64 `json:"total_size"`
	FileCount int   `json:"file_count"`
}
