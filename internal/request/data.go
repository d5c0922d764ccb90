package request

import "strings"

type Priority int

const (
	PriorityNormal Priority = iota
	PriorityHigh
)

func (p Priority) String() string {
	if p == PriorityHigh {
		return "high"
	}
	return "normal"
}

// State is the cancellation tag checked at every handoff.
type State int32

const (
	StatePending State = iota
	StateCancelled
)

func (s State) String() string {
	if s == StateCancelled {
		return "cancelled"
	}
	return "pending"
}

// ReturnCode is the transport-level outcome of a fetch. It is independent
// of HTTPStatus: a fetch can succeed at the transport level and still carry
// a 4xx/5xx status.
type ReturnCode int

const (
	ReturnSuccess ReturnCode = iota
	ReturnUnknown
	ReturnConnectionFailed
	ReturnSocketError
	ReturnHostNotFound
	ReturnTimeout
	ReturnInvalidURL
	ReturnCancelled
	ReturnTransportError
)

func (c ReturnCode) String() string {
	switch c {
	case ReturnSuccess:
		return "success"
	case ReturnUnknown:
		return "unknown"
	case ReturnConnectionFailed:
		return "connection failed"
	case ReturnSocketError:
		return "socket error"
	case ReturnHostNotFound:
		return "host not found"
	case ReturnTimeout:
		return "timeout"
	case ReturnInvalidURL:
		return "invalid url"
	case ReturnCancelled:
		return "cancelled"
	case ReturnTransportError:
		return "transport error"
	default:
		return "invalid return code"
	}
}

// IsTransient reports whether the code names a transport failure that may
// go away on its own and is therefore eligible for a retry.
func (c ReturnCode) IsTransient() bool {
	switch c {
	case ReturnUnknown,
		ReturnConnectionFailed,
		ReturnSocketError,
		ReturnHostNotFound,
		ReturnTimeout:
		return true
	default:
		return false
	}
}

// UpdateState is conditional-fetch and session state owned by the caller's
// persisted subscription. The core copies it in and out without
// interpreting it.
type UpdateState struct {
	LastModified string
	ETag         string
	Cookies      string
}

// Options are per-subscription transport options.
type Options struct {
	Username     string
	Password     string
	DontUseProxy bool
}

// SourceKind is how a source locator is fetched.
type SourceKind int

const (
	KindFile SourceKind = iota
	KindCommand
	KindNetwork
)

func (k SourceKind) String() string {
	switch k {
	case KindCommand:
		return "command"
	case KindNetwork:
		return "network"
	default:
		return "file"
	}
}

// KindOf classifies a source locator, in this order: a leading "|" is a
// command, anything with "://" that is not file:// is a network URL, the
// rest is a local file.
func KindOf(source string) SourceKind {
	if strings.HasPrefix(source, "|") {
		return KindCommand
	}
	if strings.Contains(source, "://") && !strings.HasPrefix(source, "file://") {
		return KindNetwork
	}
	return KindFile
}
