package api

import (
	"errors"
	"fmt"
)

// ErrorKind classifies backend failures so callers can decide between
// blocking, retrying, and degrading.
type ErrorKind int

const (
	// KindNetwork covers transport failures, timeouts and malformed bodies.
	KindNetwork ErrorKind = iota
	// KindValidation covers 4xx rejections of the request itself.
	KindValidation
	// KindUnavailable covers 5xx responses and explicit unavailability.
	KindUnavailable
)

func (k ErrorKind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindValidation:
		return "validation"
	case KindUnavailable:
		return "unavailable"
	}
	return "unknown"
}

// Error is the typed backend error surfaced by all client calls.
type Error struct {
	Kind   ErrorKind
	Status int
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("backend %s error: status=%d detail=%s", e.Kind, e.Status, e.Detail)
	}
	return fmt.Sprintf("backend %s error: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error { return e.Err }

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var ae *Error
	return errors.As(err, &ae) && ae.Kind == kind
}

func kindForStatus(status int) ErrorKind {
	if status >= 400 && status < 500 {
		return KindValidation
	}
	return KindUnavailable
}
