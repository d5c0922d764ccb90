package fileutil

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rohmanhakim/feed-updater/pkg/failure"
)

// GetFileExtension extracts the file extension from a path, or empty string if none
func GetFileExtension(path string) string {
	ext := filepath.Ext(path)
	if ext == "" {
		return ""
	}
	return strings.TrimPrefix(ext, ".")
}

// EnsureDir check if a given directory plus the following path exist, then create one if not
func EnsureDir(dir string, path ...string) failure.ClassifiedError {
	targetPath := []string{dir}
	targetPath = append(targetPath, path...)

	if err := os.MkdirAll(filepath.Join(targetPath...), 0755); err != nil {
		return &FileError{
			Message:   fmt.Sprintf("%v", err),
			Retryable: false,
			Cause:     ErrCausePathError,
		}
	}
	return nil
}

// WriteTempFile writes data into a new private file in dir (os.TempDir when
// empty) and returns its path. The caller owns the file and must remove it.
func WriteTempFile(dir string, pattern string, data []byte) (string, failure.ClassifiedError) {
	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return "", &FileError{
			Message:   fmt.Sprintf("cannot create temp file: %v", err),
			Retryable: false,
			Cause:     ErrCauseTempFileError,
		}
	}
	name := f.Name()

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(name)
		return "", &FileError{
			Message:   fmt.Sprintf("cannot write temp file %s: %v", name, err),
			Retryable: false,
			Cause:     ErrCauseWriteFileError,
		}
	}
	if err := f.Close(); err != nil {
		os.Remove(name)
		return "", &FileError{
			Message:   fmt.Sprintf("cannot close temp file %s: %v", name, err),
			Retryable: false,
			Cause:     ErrCauseWriteFileError,
		}
	}
	return name, nil
}

// RemoveIfExists deletes path, treating an already missing file as success.
func RemoveIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
