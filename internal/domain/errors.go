package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures so callers can decide whether to skip a
// record, fail a job, keep a worker running or abort.
type ErrorKind int

const (
	// KindUnknown is reported for errors that carry no kind.
	KindUnknown ErrorKind = iota
	// KindRecordMissing means a referenced record no longer exists in storage.
	KindRecordMissing
	// KindVariantUnresolvable means a record exists but has no variant in the requested context.
	KindVariantUnresolvable
	// KindSynthesis means a stand-in record could not be built for a removal.
	KindSynthesis
	// KindInvalidJob means a job payload failed validation or decoding.
	KindInvalidJob
	// KindJobFailed means a job could not complete and its message was failed.
	KindJobFailed
	// KindQueue means the queue backend reported an error.
	KindQueue
	// KindPrecondition means a workflow refused to start.
	KindPrecondition
)

var kindNames = map[ErrorKind]string{
	KindUnknown:             "unknown",
	KindRecordMissing:       "record_missing",
	KindVariantUnresolvable: "variant_unresolvable",
	KindSynthesis:           "synthesis",
	KindInvalidJob:          "invalid_job",
	KindJobFailed:           "job_failed",
	KindQueue:               "queue",
	KindPrecondition:        "precondition",
}

func (k ErrorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is a classified error. Op names the operation that failed.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	case e.Err != nil:
		return e.Err.Error()
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	default:
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// E builds a classified error.
func E(kind ErrorKind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds a classified error from a format string.
func Errorf(kind ErrorKind, op string, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the outermost kind found in the error chain.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind reports whether the error chain carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

// RootCause follows Unwrap to the innermost error.
func RootCause(err error) error {
	for err != nil {
		next := errors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
	return nil
}
