package report

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zip"
	"github.com/pkg/errors"
)

// Compress writes the content of dir into a zip archive at target.
func Compress(dir string, target string) (err error) {
	tmp := target + ".tmp"

	out, err := os.Create(tmp)
	if err != nil {
		return errors.Wrapf(err, "could not create archive '%s'", tmp)
	}

	defer func() {
		if err != nil {
			out.Close()
			os.Remove(tmp)
		}
	}()

	writer := zip.NewWriter(out)

	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return errors.WithStack(err)
		}

		if path == dir {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return errors.WithStack(err)
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return errors.WithStack(err)
		}

		header, err := zip.FileInfoHeader(info)
		if err != nil {
			return errors.WithStack(err)
		}

		header.Name = filepath.ToSlash(rel)

		if d.IsDir() {
			header.Name += "/"
			_, err := writer.CreateHeader(header)
			return errors.WithStack(err)
		}

		if !info.Mode().IsRegular() {
			return nil
		}

		header.Method = zip.Deflate

		entry, err := writer.CreateHeader(header)
		if err != nil {
			return errors.WithStack(err)
		}

		f, err := os.Open(path)
		if err != nil {
			return errors.WithStack(err)
		}
		defer f.Close()

		if _, err := io.Copy(entry, f); err != nil {
			return errors.Wrapf(err, "could not archive '%s'", path)
		}

		return nil
	})
	if err != nil {
		return errors.WithStack(err)
	}

	if err := writer.Close(); err != nil {
		return errors.WithStack(err)
	}

	if err := out.Close(); err != nil {
		return errors.WithStack(err)
	}

	if err := os.Rename(tmp, target); err != nil {
		return errors.WithStack(err)
	}

	return nil
}
