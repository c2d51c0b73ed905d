package sqlite

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-pkgz/fileutils"
)

// NextFileName returns the first "<n>.db" name not existing in dir, n starting after seq.
// Returned name is relative to dir.
func NextFileName(dir string, seq int64) string {
	for {
		seq++
		name := strconv.FormatInt(seq, 10) + ".db"
		if !fileutils.IsFile(filepath.Join(dir, name)) {
			return name
		}
	}
}

// EnsureDir makes database directory with all parents.
func EnsureDir(path string) error {
	if path == "" {
		return errors.New("empty database directory")
	}
	if err := os.MkdirAll(path, 0o750); err != nil {
		return fmt.Errorf("can't make database directory %s: %w", path, err)
	}
	return nil
}

// EnsureFile checks the database file exists. With checkPathOnly it makes the file's directory instead.
func EnsureFile(name string, checkPathOnly bool) error {
	if name == "" {
		return errors.New("empty database file name")
	}
	if checkPathOnly {
		return EnsureDir(filepath.Dir(name))
	}
	if !fileutils.IsFile(name) {
		return fmt.Errorf("database file %s not found", name)
	}
	return nil
}

// FileSize returns size of the database file, 0 if it can't be read.
func FileSize(name string) int64 {
	fi, err := os.Stat(name)
	if err != nil {
		return 0
	}
	return fi.Size()
}

// DeleteFile removes the database file with its journal and wal companions, if any.
func DeleteFile(name string) error {
	if err := os.Remove(name); err != nil {
		return fmt.Errorf("can't delete database file %s: %w", name, err)
	}
	for _, suffix := range []string{"-journal", "-wal", "-shm"} {
		if fileutils.IsFile(name + suffix) {
			_ = os.Remove(name + suffix)
		}
	}
	return nil
}

// DeleteEmptyDir removes the database directory if it is empty.
func DeleteEmptyDir(path string) error {
	if !fileutils.IsDir(path) {
		return fmt.Errorf("%s is not a directory", path)
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return fmt.Errorf("can't read directory %s: %w", path, err)
	}
	if len(entries) > 0 {
		return fmt.Errorf("directory %s is not empty", path)
	}
	return os.Remove(path)
}
