package metadata

import (
	"time"

	"github.com/rohmanhakim/feed-updater/internal/logger"
	"github.com/rohmanhakim/feed-updater/internal/metrics"
)

/*
Metadata Collected
- Fetch durations and sizes
- HTTP statuses and return codes
- Retry schedules
- Cancellations and deliveries

Structured logging is preferred.

Allowed:
- Primitive values
- Timestamps
- Sources (as values, not objects with behavior)
- Status codes
- Durations
- Identifiers (request ID, owner)

Metadata is write-only.
No component may read metadata to influence scheduling, retry or delivery.
*/

/*
Recorder writes structured log lines and feeds Prometheus collectors.
It must not:
- perform I/O decisions
- affect control flow
Ordering guarantees:
- Events are recorded synchronously in the order a single goroutine reports them.
- No global ordering across workers is guaranteed.
*/
type Recorder struct {
	metrics *metrics.Metrics
}

// NewRecorder accepts a nil *metrics.Metrics when metrics are disabled.
func NewRecorder(m *metrics.Metrics) *Recorder {
	return &Recorder{
		metrics: m,
	}
}

func (r *Recorder) RecordError(
	observedAt time.Time,
	packageName string,
	action string,
	cause ErrorCause,
	details string,
	attrs []Attribute,
) {
	args := []any{
		logger.KeyPackage, packageName,
		logger.KeyAction, action,
		logger.KeyCause, cause.String(),
		logger.KeyError, details,
		"observed_at", observedAt,
	}
	for _, attr := range attrs {
		args = append(args, string(attr.Key), attr.Value)
	}
	logger.Warn("error recorded", args...)
	r.metrics.IncError(packageName, cause.String())
}

func (r *Recorder) RecordFetch(event FetchEvent) {
	logger.Debug("fetch completed",
		logger.KeySource, event.Source,
		logger.KeyKind, event.Kind,
		logger.KeyStatus, event.HTTPStatus,
		logger.KeyReturnCode, event.ReturnCode,
		logger.KeySize, event.Size,
		logger.KeyRetry, event.RetryCount,
		logger.DurationMs(event.Duration),
		"content_type", event.ContentType,
	)
	r.metrics.ObserveFetch(event.Kind, event.HTTPStatus, event.Duration, event.Size)
}

func (r *Recorder) RecordRetry(source string, returnCode string, retryCount int, delay time.Duration) {
	logger.Info("retry scheduled",
		logger.KeySource, source,
		logger.KeyReturnCode, returnCode,
		logger.KeyRetry, retryCount,
		logger.KeyDelay, delay.String(),
	)
	r.metrics.IncRetry(returnCode)
}

func (r *Recorder) RecordDelivery(source string, returnCode string, httpStatus int, retryCount int) {
	logger.Debug("request delivered",
		logger.KeySource, source,
		logger.KeyReturnCode, returnCode,
		logger.KeyStatus, httpStatus,
		logger.KeyRetry, retryCount,
	)
	r.metrics.IncDelivery(returnCode)
}

func (r *Recorder) RecordCancel(source string, stage CancelStage) {
	logger.Debug("request cancelled", logger.KeySource, source, "stage", string(stage))
	r.metrics.IncCancel(string(stage))
}

func (r *Recorder) RecordQueueDepth(high, normal, results int) {
	r.metrics.SetQueueDepth("high", high)
	r.metrics.SetQueueDepth("normal", normal)
	r.metrics.SetQueueDepth("results", results)
}

func (r *Recorder) RecordOnline(online bool) {
	logger.Info("connectivity changed", logger.KeyOnline, online)
	r.metrics.SetOnline(online)
}

type MetadataSink interface {
	RecordError(
		observedAt time.Time,
		packageName string,
		action string,
		cause ErrorCause,
		details string,
		attrs []Attribute,
	)
	RecordFetch(event FetchEvent)
	RecordRetry(source string, returnCode string, retryCount int, delay time.Duration)
	RecordDelivery(source string, returnCode string, httpStatus int, retryCount int)
	RecordCancel(source string, stage CancelStage)
	RecordQueueDepth(high, normal, results int)
	RecordOnline(online bool)
}

// NoopSink, struct that implements metadata.MetadataSink but does nothing
// Scheduler (or Test) can decide whether to inject Recorder or NoopSink
// Purpose is to make metadata orthogonal

type NoopSink struct{}

func (n *NoopSink) RecordError(
	observedAt time.Time,
	packageName string,
	action string,
	cause ErrorCause,
	details string,
	attrs []Attribute,
) {
}

func (n *NoopSink) RecordFetch(event FetchEvent) {}

func (n *NoopSink) RecordRetry(source string, returnCode string, retryCount int, delay time.Duration) {
}

func (n *NoopSink) RecordDelivery(source string, returnCode string, httpStatus int, retryCount int) {
}

func (n *NoopSink) RecordCancel(source string, stage CancelStage) {}

func (n *NoopSink) RecordQueueDepth(high, normal, results int) {}

func (n *NoopSink) RecordOnline(online bool) {}
