package failure

import "errors"

type Severity int

// update control flow
const (
	SeverityFatal Severity = iota
	SeverityRecoverable
)

func (s Severity) String() string {
	switch s {
	case SeverityRecoverable:
		return "recoverable"
	default:
		return "fatal"
	}
}

type ClassifiedError interface {
	error
	Severity() Severity
}

// IsRecoverable reports whether err (or anything it wraps) is a
// ClassifiedError with recoverable severity.
func IsRecoverable(err error) bool {
	var classified ClassifiedError
	if errors.As(err, &classified) {
		return classified.Severity() == SeverityRecoverable
	}
	return false
}
