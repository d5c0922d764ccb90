package filter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/rohmanhakim/feed-updater/internal/metadata"
	"github.com/rohmanhakim/feed-updater/internal/request"
	"github.com/rohmanhakim/feed-updater/pkg/fileutil"
)

/*
Responsibilities

- Turn a filter locator into a shell command
- Feed the fetched payload to the command through a private temp file
- Replace the payload with the command's stdout on success

Filter failures are never fatal: the unfiltered payload is kept and the
reason is recorded in the request's FilterErrors.
*/

const xslSuffix = ".xsl"

type Executor struct {
	metadataSink metadata.MetadataSink
	tempDir      string
}

// NewExecutor writes temp files into tempDir, or the system default when
// tempDir is empty.
func NewExecutor(metadataSink metadata.MetadataSink, tempDir string) *Executor {
	return &Executor{
		metadataSink: metadataSink,
		tempDir:      tempDir,
	}
}

// Command resolves a filter locator into the command line to run. A stylesheet
// is applied with xsltproc reading the document from stdin.
func Command(filterCmd string) string {
	if strings.HasSuffix(filterCmd, xslSuffix) {
		return fmt.Sprintf("xsltproc %s -", filterCmd)
	}
	return filterCmd
}

// Apply runs req.FilterCmd over req.Data in place. It is a no-op when there is
// no filter or no data.
func (e *Executor) Apply(ctx context.Context, req *request.Request) *FilterError {
	if req.FilterCmd == "" || len(req.Data) == 0 {
		return nil
	}

	out, err := e.Run(ctx, req.FilterCmd, req.Data)
	if err != nil {
		req.FilterErrors = err.Error()
		e.metadataSink.RecordError(
			time.Now(),
			"filter",
			"Executor.Apply",
			mapFilterErrorToMetadataCause(err),
			err.Error(),
			[]metadata.Attribute{
				metadata.NewAttr(metadata.AttrSource, req.Source),
				metadata.NewAttr(metadata.AttrFilter, req.FilterCmd),
			},
		)
		return err
	}

	req.Data = out
	req.FilterErrors = ""
	return nil
}

// Run pipes data through filterCmd and returns its stdout.
func (e *Executor) Run(ctx context.Context, filterCmd string, data []byte) ([]byte, *FilterError) {
	cmd := Command(filterCmd)

	tmpPath, ferr := fileutil.WriteTempFile(e.tempDir, "feedupd-filter-*", data)
	if ferr != nil {
		return nil, &FilterError{
			Message: fmt.Sprintf("cannot prepare input for %s: %v", cmd, ferr),
			Cause:   ErrCauseTempFile,
		}
	}
	defer fileutil.RemoveIfExists(tmpPath)

	var stdout, stderr bytes.Buffer
	proc := exec.CommandContext(ctx, "sh", "-c", fmt.Sprintf("%s < %s", cmd, shellQuote(tmpPath)))
	proc.Stdout = &stdout
	proc.Stderr = &stderr

	if err := proc.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, exitStatusError(cmd, exitErr.ExitCode(), stderr.String())
		}
		return nil, &FilterError{
			Message: withStderr(fmt.Sprintf("cannot run %s: %v", cmd, err), stderr.String()),
			Cause:   ErrCauseSpawn,
		}
	}

	return stdout.Bytes(), nil
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
