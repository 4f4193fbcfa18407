package feed

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTimestamp marks a record whose creation time is missing or malformed
	ErrInvalidTimestamp = errors.New("invalid timestamp")

	// ErrFetchFailure marks an error returned by the document store
	ErrFetchFailure = errors.New("fetch failure")

	// ErrFetchInFlight is returned when a second fetch is started for the same feed
	ErrFetchInFlight = errors.New("fetch already in flight")

	// ErrClosed is returned by a paginator after Close
	ErrClosed = errors.New("paginator closed")

	// ErrStale is returned when a fetch finished after the feed was reset
	ErrStale = errors.New("stale fetch result discarded")
)

// TimestampError names the record that failed normalization
type TimestampError struct {
	RecordID string
	Reason   string
}

func (e *TimestampError) Error() string {
	return fmt.Sprintf("record %q: %s: %s", e.RecordID, ErrInvalidTimestamp, e.Reason)
}

func (e *TimestampError) Unwrap() error {
	return ErrInvalidTimestamp
}

// FetchError wraps a store error, it matches both ErrFetchFailure and the cause
type FetchError struct {
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s: %v", ErrFetchFailure, e.Err)
}

func (e *FetchError) Unwrap() []error {
	return []error{ErrFetchFailure, e.Err}
}
