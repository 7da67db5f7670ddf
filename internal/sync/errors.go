package sync

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrAmbiguousDecrypt   = errors.New("ambiguous decrypt")
	ErrZeroMtime          = errors.New("remote file has no modification time")
	ErrSizeLimit          = errors.New("size larger than the configured limit")
	ErrInvariant          = errors.New("sync invariant violated")
	ErrUndecided          = errors.New("entry left without a decision")
	ErrUnknownDecision    = errors.New("unknown decision")
	ErrNotImplemented     = errors.New("not implemented")
	ErrTooManyErrors      = errors.New("too many errors, stop the remaining tasks")
	ErrSyncAlreadyRunning = errors.New("sync already running")
	ErrPasswordCheck      = errors.New("password check failed")
)

// LevelError aggregates the failures of one execution level.
type LevelError struct {
	Phase   Category
	Level   int
	Errors  []error
	TooMany bool
}

func (e *LevelError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s level %d: %d error(s)", e.Phase, e.Level, len(e.Errors))
	for _, err := range e.Errors {
		sb.WriteString("; ")
		sb.WriteString(err.Error())
	}
	if e.TooMany {
		sb.WriteString("; ")
		sb.WriteString(ErrTooManyErrors.Error())
	}
	return sb.String()
}

func (e *LevelError) Unwrap() []error {
	if e.TooMany {
		return append(append([]error(nil), e.Errors...), ErrTooManyErrors)
	}
	return e.Errors
}
