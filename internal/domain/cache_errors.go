package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a cache-layer failure so callers can decide whether
// to retry, surface it to the user, or treat it as an idempotent success.
type ErrorKind int

const (
	KindIO ErrorKind = iota
	KindConflict
	KindNotFound
	KindCorrupt
	KindDiskFull
	KindPermissionDenied
	KindPermanentUpstream
	KindRangeNotSatisfiable
	KindTimeout
	KindCancelled
)

func (k ErrorKind) String() string {
	switch k {
	case KindIO:
		return "io_error"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindCorrupt:
		return "corrupt"
	case KindDiskFull:
		return "disk_full"
	case KindPermissionDenied:
		return "permission_denied"
	case KindPermanentUpstream:
		return "permanent_upstream"
	case KindRangeNotSatisfiable:
		return "range_not_satisfiable"
	case KindTimeout:
		return "timeout"
	case KindCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// CacheError is the structured error returned by the repository, chunk
// store, and downloader (spec §4.A "Failure model", §7 error taxonomy).
type CacheError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *CacheError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *CacheError) Unwrap() error { return e.Err }

// NewCacheError constructs a CacheError, wrapping the underlying cause.
func NewCacheError(op string, kind ErrorKind, err error) *CacheError {
	return &CacheError{Op: op, Kind: kind, Err: err}
}

// IsKind reports whether err is a *CacheError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var ce *CacheError
	if errors.As(err, &ce) {
		return ce.Kind == kind
	}
	return false
}

// Retryable reports whether the error kind is one the downloader should
// retry with backoff rather than surface immediately (spec §7).
func (k ErrorKind) Retryable() bool {
	return k == KindIO || k == KindTimeout
}
