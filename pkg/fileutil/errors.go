package fileutil

import (
	"fmt"

	"github.com/rohmanhakim/feed-updater/pkg/failure"
)

type FileErrorCause string

const (
	ErrCausePathError      FileErrorCause = "path error"
	ErrCauseTempFileError  FileErrorCause = "temp file error"
	ErrCauseWriteFileError FileErrorCause = "write error"
)

type FileError struct {
	Message   string
	Retryable bool
	Cause     FileErrorCause
}

func (e *FileError) Error() string {
	return fmt.Sprintf("file error: %s: %s", e.Cause, e.Message)
}

func (e *FileError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}
