package storage_test

import (
	"time"

	"github.com/rohmanhakim/feed-updater/internal/metadata"
)

// metadataSinkMock records the last RecordError call.
type metadataSinkMock struct {
	metadata.NoopSink
	recordErrorCalled      bool
	recordErrorPackageName string
	recordErrorAction      string
	recordErrorCause       metadata.ErrorCause
	recordErrorAttrs       []metadata.Attribute
}

func (m *metadataSinkMock) RecordError(
	observedAt time.Time,
	packageName string,
	action string,
	cause metadata.ErrorCause,
	details string,
	attrs []metadata.Attribute,
) {
	m.recordErrorCalled = true
	m.recordErrorPackageName = packageName
	m.recordErrorAction = action
	m.recordErrorCause = cause
	m.recordErrorAttrs = attrs
}

func findAttrValue(attrs []metadata.Attribute, key metadata.AttributeKey) string {
	for _, attr := range attrs {
		if attr.Key == key {
			return attr.Value
		}
	}
	return ""
}
