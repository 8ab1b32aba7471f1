package models

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across storage and queue layers
var (
	// ErrNoMessage indicates a queue receive found nothing ready
	ErrNoMessage = errors.New("no message available")
	// ErrInvalidTransition indicates a job status change that the state
	// machine does not permit
	ErrInvalidTransition = errors.New("invalid job status transition")
	// ErrNotFound indicates a lookup for an entity that does not exist
	ErrNotFound = errors.New("not found")
)

// ErrorKind classifies task failures for retry decisions
type ErrorKind string

const (
	// ErrorKindTransientFetch covers network failures, timeouts and
	// retryable upstream statuses. Always worth retrying.
	ErrorKindTransientFetch ErrorKind = "transient_fetch"
	// ErrorKindExtraction covers selector misses and unparseable pages.
	// Retried up to the attempt cap since pages change between fetches.
	ErrorKindExtraction ErrorKind = "extraction"
	// ErrorKindValidation covers malformed payloads and recipes. Never
	// retried: the input will not improve on redelivery.
	ErrorKindValidation ErrorKind = "validation"
	// ErrorKindPersistence covers storage write failures. Retried up to
	// the attempt cap.
	ErrorKindPersistence ErrorKind = "persistence"
)

// TaskError wraps a failure with its retry classification
type TaskError struct {
	Kind ErrorKind
	Err  error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *TaskError) Unwrap() error {
	return e.Err
}

// NewTransientFetchError wraps a network or upstream failure
func NewTransientFetchError(err error) *TaskError {
	return &TaskError{Kind: ErrorKindTransientFetch, Err: err}
}

// NewExtractionError wraps a selector or parse failure
func NewExtractionError(err error) *TaskError {
	return &TaskError{Kind: ErrorKindExtraction, Err: err}
}

// NewValidationError wraps a malformed input failure
func NewValidationError(err error) *TaskError {
	return &TaskError{Kind: ErrorKindValidation, Err: err}
}

// NewPersistenceError wraps a storage failure
func NewPersistenceError(err error) *TaskError {
	return &TaskError{Kind: ErrorKindPersistence, Err: err}
}

// KindOf returns the classification of err, or the empty string when
// err carries no TaskError in its chain.
func KindOf(err error) ErrorKind {
	var te *TaskError
	if errors.As(err, &te) {
		return te.Kind
	}
	return ""
}

// IsRetryable reports whether a failed delivery should be redelivered.
// Validation failures are terminal immediately; every other kind, and
// any unclassified error, gets the remaining attempt budget.
func IsRetryable(err error) bool {
	return KindOf(err) != ErrorKindValidation
}
