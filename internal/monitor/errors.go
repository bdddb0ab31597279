package monitor

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why a scrape attempt failed. The kind is persisted on
// the failed observation so history queries can distinguish network trouble
// from stale selectors.
type ErrorKind string

// Error kinds recorded on observations.
const (
	ErrorKindTimeout    ErrorKind = "timeout"
	ErrorKindNetwork    ErrorKind = "network"
	ErrorKindHTTP       ErrorKind = "http"
	ErrorKindRobots     ErrorKind = "robots_disallowed"
	ErrorKindParse      ErrorKind = "parse"
	ErrorKindValidation ErrorKind = "validation"
)

// Store sentinel errors.
var (
	ErrNotFound     = errors.New("not found")
	ErrDuplicateURL = errors.New("url already watched")
)

// FetchError is returned by a Fetcher when a page could not be retrieved.
// StatusCode is set only for KindHTTP.
type FetchError struct {
	Kind       ErrorKind
	StatusCode int
	Err        error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	if e.Kind == ErrorKindHTTP {
		return fmt.Sprintf("fetch failed: http status %d", e.StatusCode)
	}
	if e.Err != nil {
		return fmt.Sprintf("fetch failed (%s): %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("fetch failed (%s)", e.Kind)
}

// Unwrap exposes the underlying cause for errors.Is/As chains.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// Retryable reports whether another attempt may succeed. Timeouts, connection
// failures, 429 and 5xx responses are retryable; any other HTTP status and a
// robots denial are permanent.
func (e *FetchError) Retryable() bool {
	switch e.Kind {
	case ErrorKindTimeout, ErrorKindNetwork:
		return true
	case ErrorKindHTTP:
		return e.StatusCode == 429 || e.StatusCode >= 500
	default:
		return false
	}
}

// KindOf maps an error from the scrape pipeline to the persisted error kind.
// Unrecognized errors are treated as network failures.
func KindOf(err error) ErrorKind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ErrorKindNetwork
}
