package suite

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

const (
	suiteExtension = ".py"
	conftestFile   = "conftest.py"
)

var ErrNotFound = errors.New("suite not found")

type Suite struct {
	ID      int    `json:"id"`
	Name    string `json:"name"`
	AbsPath string `json:"abs_path"`
	RelPath string `json:"rel_path"`
}

// Catalog enumerates the suite files of a directory. Suite ids are the
// ordinal position of the file in the lexical order of relative paths.
type Catalog struct {
	dir    string
	logger *slog.Logger
}

func (c *Catalog) Dir() string {
	return c.dir
}

// List walks the suite directory, creating it when missing.
func (c *Catalog) List() ([]Suite, error) {
	if err := os.MkdirAll(c.dir, 0750); err != nil {
		return nil, errors.Wrapf(err, "could not ensure suite directory '%s'", c.dir)
	}

	relPaths := make([]string, 0)

	err := filepath.WalkDir(c.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return errors.WithStack(err)
		}

		if d.IsDir() {
			if path != c.dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}

		if !isSuiteFile(d.Name()) {
			return nil
		}

		rel, err := filepath.Rel(c.dir, path)
		if err != nil {
			return errors.WithStack(err)
		}

		relPaths = append(relPaths, rel)

		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "could not walk suite directory '%s'", c.dir)
	}

	sort.Strings(relPaths)

	suites := make([]Suite, 0, len(relPaths))
	for idx, rel := range relPaths {
		suites = append(suites, Suite{
			ID:      idx,
			Name:    filepath.Base(rel),
			AbsPath: filepath.Join(c.dir, rel),
			RelPath: filepath.ToSlash(rel),
		})
	}

	c.logger.Debug("listed suites", slog.String("dir", c.dir), slog.Int("count", len(suites)))

	return suites, nil
}

// Resolve returns the suite with the given ordinal id.
func (c *Catalog) Resolve(id int) (Suite, error) {
	suites, err := c.List()
	if err != nil {
		return Suite{}, errors.WithStack(err)
	}

	if id < 0 || id >= len(suites) {
		return Suite{}, errors.Wrapf(ErrNotFound, "suite id %d is out of range [0, %d)", id, len(suites))
	}

	return suites[id], nil
}

func isSuiteFile(name string) bool {
	return strings.HasSuffix(name, suiteExtension) && name != conftestFile
}

func NewCatalog(dir string, logger *slog.Logger) *Catalog {
	return &Catalog{
		dir:    dir,
		logger: logger.With("component", "suite-catalog"),
	}
}
