package ecfr

import (
	"errors"
	"fmt"
)

// Sentinel errors used for per-title and run-level control flow.
var (
	// ErrTitleNotFound marks a 404 for a title at a specific date. It is
	// terminal for that probe: the caller either tries an earlier date or
	// records the title as skipped, never retries.
	ErrTitleNotFound = errors.New("title not found")

	// ErrDateUnavailable means the whole fallback window was probed without
	// finding published data. It is a skip signal, not a failure.
	ErrDateUnavailable = errors.New("no published data within fallback window")

	// ErrEmptyResult aborts a run in which zero titles yielded usable
	// documents, so a valid prior snapshot is never replaced by an empty one.
	ErrEmptyResult = errors.New("no titles yielded usable documents")
)

// FetchError is a terminal fetch failure: a non-retryable status, or a
// transient condition that exhausted the retry budget.
type FetchError struct {
	Status   int
	URL      string
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("fetch %s: status %d after %d attempt(s)", e.URL, e.Status, e.Attempts)
	}
	return fmt.Sprintf("fetch %s: %v after %d attempt(s)", e.URL, e.Err, e.Attempts)
}

func (e *FetchError) Unwrap() error { return e.Err }

// DiscoveryError is fatal: without a title list there is nothing to ingest.
type DiscoveryError struct {
	Err error
}

func (e *DiscoveryError) Error() string { return fmt.Sprintf("title discovery: %v", e.Err) }

func (e *DiscoveryError) Unwrap() error { return e.Err }

// AggregationError records a malformed document body. The title's
// contribution is omitted from the aggregate; the run continues.
type AggregationError struct {
	Title Title
	Err   error
}

func (e *AggregationError) Error() string {
	return fmt.Sprintf("aggregate title %d: %v", e.Title, e.Err)
}

func (e *AggregationError) Unwrap() error { return e.Err }
