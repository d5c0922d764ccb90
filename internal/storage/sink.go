package storage

import (
	"errors"
	"mime"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rohmanhakim/feed-updater/internal/logger"
	"github.com/rohmanhakim/feed-updater/internal/metadata"
	"github.com/rohmanhakim/feed-updater/pkg/failure"
	"github.com/rohmanhakim/feed-updater/pkg/fileutil"
	"github.com/rohmanhakim/feed-updater/pkg/hashutil"
	"github.com/rohmanhakim/feed-updater/pkg/urlutil"
)

/*
Responsibilities
- Persist fetched payloads
- Ensure deterministic filenames

Output Characteristics
- One file per source: <hash of source key>.<extension by content type>
- Idempotent writes
- Overwrite-safe reruns
*/

type Sink interface {
	Write(
		outputDir string,
		doc Document,
		hashAlgo hashutil.HashAlgo,
	) (WriteResult, failure.ClassifiedError)
}

type LocalSink struct {
	metadataSink metadata.MetadataSink
}

func NewLocalSink(
	metadataSink metadata.MetadataSink,
) LocalSink {
	return LocalSink{
		metadataSink: metadataSink,
	}
}

func (s *LocalSink) Write(
	outputDir string,
	doc Document,
	hashAlgo hashutil.HashAlgo,
) (WriteResult, failure.ClassifiedError) {
	writeResult, err := write(outputDir, doc, hashAlgo)
	if err != nil {
		var storageError *StorageError
		errors.As(err, &storageError)
		s.metadataSink.RecordError(
			time.Now(),
			"storage",
			"LocalSink.Write",
			mapStorageErrorToMetadataCause(storageError),
			err.Error(),
			[]metadata.Attribute{
				metadata.NewAttr(metadata.AttrSource, doc.Source),
				metadata.NewAttr(metadata.AttrPath, storageError.Path),
			},
		)
		return WriteResult{}, storageError
	}
	logger.Debug("payload written",
		logger.Source(doc.Source),
		"path", writeResult.Path(),
		logger.KeySize, len(doc.Data),
	)
	return writeResult, nil
}

func write(
	outputDir string,
	doc Document,
	hashAlgo hashutil.HashAlgo,
) (WriteResult, failure.ClassifiedError) {
	sourceHashFull, err := hashutil.HashBytes([]byte(urlutil.SourceKey(doc.Source)), hashAlgo)
	if err != nil {
		return WriteResult{}, &StorageError{
			Message:   err.Error(),
			Retryable: false,
			Cause:     ErrCauseHashComputationFailed,
			Path:      "",
		}
	}

	// First 12 hex characters keep names short and collisions unlikely
	sourceHash := sourceHashFull[:12]

	if err := fileutil.EnsureDir(outputDir); err != nil {
		var fileErr *fileutil.FileError
		if errors.As(err, &fileErr) && fileErr.Cause == fileutil.ErrCausePathError {
			return WriteResult{}, &StorageError{
				Message:   err.Error(),
				Retryable: true,
				Cause:     ErrCausePathError,
				Path:      outputDir,
			}
		}
		return WriteResult{}, &StorageError{
			Message:   err.Error(),
			Retryable: false,
			Cause:     ErrCauseWriteFailure,
			Path:      outputDir,
		}
	}

	fullPath := filepath.Join(outputDir, sourceHash+extensionFor(doc))

	if err := os.WriteFile(fullPath, doc.Data, 0644); err != nil {
		cause := ErrCauseWriteFailure
		retryable := false
		if errors.Is(err, syscall.ENOSPC) {
			cause = ErrCauseDiskFull
			retryable = true
		}
		return WriteResult{}, &StorageError{
			Message:   err.Error(),
			Retryable: retryable,
			Cause:     cause,
			Path:      fullPath,
		}
	}

	return NewWriteResult(sourceHash, fullPath, hashutil.Fingerprint(doc.Data)), nil
}

// extensionFor picks a file extension from the content type, falling back
// to the source's own extension and finally ".bin".
func extensionFor(doc Document) string {
	mediaType, _, _ := mime.ParseMediaType(doc.ContentType)
	switch {
	case mediaType == "application/rss+xml",
		mediaType == "application/atom+xml",
		mediaType == "application/rdf+xml",
		strings.HasSuffix(mediaType, "/xml"):
		return ".xml"
	case mediaType == "application/json", mediaType == "application/feed+json":
		return ".json"
	case mediaType == "text/html":
		return ".html"
	case mediaType == "image/x-icon", mediaType == "image/vnd.microsoft.icon":
		return ".ico"
	case mediaType == "image/png":
		return ".png"
	case mediaType == "image/gif":
		return ".gif"
	case mediaType == "image/jpeg":
		return ".jpg"
	case mediaType == "image/svg+xml":
		return ".svg"
	}
	if ext := fileutil.GetFileExtension(sourcePath(doc.Source)); ext != "" && len(ext) <= 5 {
		return "." + strings.ToLower(ext)
	}
	return ".bin"
}

// sourcePath returns the path component of a file or URL source. Commands
// have none.
func sourcePath(source string) string {
	if strings.HasPrefix(source, "|") {
		return ""
	}
	if strings.Contains(source, "://") {
		parsed, err := url.Parse(source)
		if err != nil {
			return ""
		}
		return parsed.Path
	}
	return source
}
