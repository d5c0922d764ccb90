package fetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/exec"
	"strings"

	"github.com/rohmanhakim/feed-updater/internal/logger"
	"github.com/rohmanhakim/feed-updater/internal/request"
)

// execCommand runs the source after its leading "|" through the shell and
// captures stdout. A clean exit is a 200; anything else is a 404.
func execCommand(ctx context.Context, req *request.Request) *FetchError {
	command := strings.TrimPrefix(req.Source, "|")
	logger.Debug("executing command", logger.KeySource, command)

	var stdout bytes.Buffer
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Stdout = &stdout

	err := cmd.Run()
	req.Data = stdout.Bytes()
	req.ReturnCode = request.ReturnSuccess
	if err == nil {
		req.HTTPStatus = http.StatusOK
		return nil
	}

	req.HTTPStatus = http.StatusNotFound
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &FetchError{
			Message:   fmt.Sprintf("%s exited with status %d", command, exitErr.ExitCode()),
			Retryable: false,
			Cause:     ErrCauseCommandFailed,
		}
	}
	req.Data = nil
	logger.Warn("could not open pipe", logger.KeySource, command, logger.Err(err))
	return &FetchError{
		Message:   fmt.Sprintf("could not open pipe %q: %v", command, err),
		Retryable: false,
		Cause:     ErrCauseCommandSpawn,
	}
}

// localPath strips the file:// scheme and any #fragment.
func localPath(source string) string {
	path := strings.TrimPrefix(source, "file://")
	if i := strings.IndexByte(path, '#'); i >= 0 {
		path = path[:i]
	}
	return path
}

// loadFile reads a local feed. Missing files are a 404; unreadable or empty
// files are a 403.
func loadFile(req *request.Request) *FetchError {
	path := localPath(req.Source)
	req.ReturnCode = request.ReturnSuccess

	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		req.HTTPStatus = http.StatusNotFound
		req.Data = nil
		return &FetchError{
			Message:   fmt.Sprintf("there is no file %q", path),
			Retryable: false,
			Cause:     ErrCauseFileMissing,
		}
	}

	data, err := os.ReadFile(path)
	if err != nil || len(data) == 0 {
		req.HTTPStatus = http.StatusForbidden
		req.Data = nil
		msg := fmt.Sprintf("could not open file %q", path)
		if err != nil {
			msg = fmt.Sprintf("%s: %v", msg, err)
		}
		return &FetchError{
			Message:   msg,
			Retryable: false,
			Cause:     ErrCauseFileUnreadable,
		}
	}

	req.HTTPStatus = http.StatusOK
	req.Data = data
	return nil
}
