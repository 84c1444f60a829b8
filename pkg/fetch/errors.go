package fetch

import (
	"errors"
	"fmt"
)

// Common errors returned by the scheduler.
var (
	// ErrAbsent is returned for not-found-equivalent responses. Many
	// source/season/category combinations legitimately do not exist, so
	// this is routine, not a failure.
	ErrAbsent = errors.New("resource absent")

	// ErrSourceUnavailable is returned after transient failures exhaust
	// the retry budget. The source's contribution to the current batch is
	// partial or missing; other sources keep processing.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrContextCancelled is returned when the context is cancelled during
	// a retry backoff.
	ErrContextCancelled = errors.New("context cancelled")
)

// ErrorClass represents a classification of fetch failures.
type ErrorClass string

const (
	// ErrorClassClient represents non-retryable 4xx responses.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx-equivalent responses.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassThrottle represents too-many-requests responses.
	ErrorClassThrottle ErrorClass = "throttle"

	// ErrorClassNetwork represents network and timeout errors.
	ErrorClassNetwork ErrorClass = "network"
)

// Error is a classified fetch failure with source context.
type Error struct {
	SourceKey  string
	URL        string
	StatusCode int
	Class      ErrorClass
	Err        error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch %s error (source %s, status %d): %v",
			e.Class, e.SourceKey, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s error (source %s, status %d): %s",
		e.Class, e.SourceKey, e.StatusCode, e.URL)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// Transient reports whether the failure is worth retrying.
func (e *Error) Transient() bool {
	switch e.Class {
	case ErrorClassServer, ErrorClassThrottle, ErrorClassNetwork:
		return true
	default:
		// Client errors waste the retry budget and never recover.
		return false
	}
}

// classifyStatus maps an HTTP status to an error class. Statuses outside the
// error ranges return the empty class.
func classifyStatus(status int) ErrorClass {
	switch {
	case status == 429:
		return ErrorClassThrottle
	case status >= 500:
		return ErrorClassServer
	case status >= 400:
		return ErrorClassClient
	default:
		return ""
	}
}
