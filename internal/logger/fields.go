package logger

import (
	"log/slog"
	"time"
)

// Standard field keys. Use these consistently so log lines can be queried
// by request, source, and worker.
const (
	KeyRequestID  = "request_id"
	KeySource     = "source"
	KeyKind       = "kind"
	KeyPriority   = "priority"
	KeyOwner      = "owner"
	KeyWorker     = "worker"
	KeyRetry      = "retry"
	KeyDelay      = "delay"
	KeyStatus     = "status"
	KeyReturnCode = "return_code"
	KeySize       = "size"
	KeyDurationMs = "duration_ms"
	KeyFilter     = "filter"
	KeyError      = "error"
	KeyOnline     = "online"
	KeyPackage    = "package"
	KeyAction     = "action"
	KeyCause      = "cause"
)

func RequestID(id string) slog.Attr {
	return slog.String(KeyRequestID, id)
}

func Source(src string) slog.Attr {
	return slog.String(KeySource, src)
}

func Worker(id int) slog.Attr {
	return slog.Int(KeyWorker, id)
}

func Status(code int) slog.Attr {
	return slog.Int(KeyStatus, code)
}

// DurationMs records d in fractional milliseconds
func DurationMs(d time.Duration) slog.Attr {
	return slog.Float64(KeyDurationMs, float64(d.Microseconds())/1000.0)
}

// Err returns an empty attribute for a nil error, which slog drops.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}
