package models

import (
	"errors"
	"fmt"
)

// ErrorKind is the closed set of retrieval failure conditions. Every handling
// site switches over the full set so new kinds cannot be silently ignored.
type ErrorKind int

const (
	// KindOffline means connectivity was known to be unavailable before a fetch.
	KindOffline ErrorKind = iota + 1
	// KindFetchFailed means a network or HTTP failure fetching any of the three artifacts.
	KindFetchFailed
	// KindQuotaExceeded means the persistent cache write was rejected for space.
	KindQuotaExceeded
	// KindMalformedArtifact means a binary parse failure: bad length prefix,
	// truncated record, or dimension mismatch.
	KindMalformedArtifact
	// KindWorkerTimeout means the isolated engine failed to respond in time.
	KindWorkerTimeout
	// KindWorkerError means the isolated engine reported a failure.
	KindWorkerError
	// KindNoRelevantContent means fusion produced an empty result set for a query.
	KindNoRelevantContent
)

// String returns the stable wire name for the kind.
func (k ErrorKind) String() string {
	switch k {
	case KindOffline:
		return "offline"
	case KindFetchFailed:
		return "artifacts-fetch-failed"
	case KindQuotaExceeded:
		return "quota-exceeded"
	case KindMalformedArtifact:
		return "malformed-artifact"
	case KindWorkerTimeout:
		return "worker-timeout"
	case KindWorkerError:
		return "worker-error"
	case KindNoRelevantContent:
		return "no-relevant-content"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Recoverable reports whether retrying the failed operation can succeed.
// Offline recovers only when connectivity returns; quota and malformed artifacts
// require user or deploy action and must short-circuit.
func (k ErrorKind) Recoverable() bool {
	switch k {
	case KindFetchFailed, KindWorkerTimeout, KindWorkerError, KindNoRelevantContent:
		return true
	case KindOffline, KindQuotaExceeded, KindMalformedArtifact:
		return false
	default:
		return false
	}
}

// RetrievalError is a typed failure carrying its kind, the operation that failed,
// and the underlying cause.
type RetrievalError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

// NewError builds a RetrievalError. err may be nil for conditions with no cause.
func NewError(kind ErrorKind, op string, err error) *RetrievalError {
	return &RetrievalError{Kind: kind, Op: op, Err: err}
}

// Error implements error.
func (e *RetrievalError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

// Unwrap returns the underlying cause.
func (e *RetrievalError) Unwrap() error {
	return e.Err
}

// Is matches another RetrievalError by kind, so errors.Is can test conditions.
func (e *RetrievalError) Is(target error) bool {
	var re *RetrievalError
	if errors.As(target, &re) {
		return e.Kind == re.Kind
	}
	return false
}

// KindOf extracts the ErrorKind from err, if it is (or wraps) a RetrievalError.
func KindOf(err error) (ErrorKind, bool) {
	var re *RetrievalError
	if errors.As(err, &re) {
		return re.Kind, true
	}
	return 0, false
}
