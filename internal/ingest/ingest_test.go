package ingest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/ecfr-snapshot/internal/ecfr"
	"github.com/JakeFAU/ecfr-snapshot/internal/ratelimit"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

// mapFetcher serves canned responses keyed by URL; unknown URLs 404.
type mapFetcher struct {
	mu        sync.Mutex
	responses map[string][]byte
	errs      map[string]error
	calls     []string
}

func (f *mapFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, url)
	if err, ok := f.errs[url]; ok {
		return nil, err
	}
	if body, ok := f.responses[url]; ok {
		return body, nil
	}
	return nil, fmt.Errorf("%s: %w", url, ecfr.ErrTitleNotFound)
}

func (f *mapFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

const testBase = "https://ecfr.example.test"

func titleURL(date string, title int) string {
	return fmt.Sprintf("%s/api/versioner/v1/full/%s/title-%02d.xml", testBase, date, title)
}

func newTestRunner(fetcher ecfr.Fetcher, clock ecfr.Clock) *Runner {
	limiter := ratelimit.New(ratelimit.Config{MaxInFlight: 2})
	return New(fetcher, limiter, clock, Config{BaseURL: testBase, FallbackDays: 5}, nil)
}

func TestRunFetchesAllTitles(t *testing.T) {
	t.Parallel()

	clock := fixedClock{now: time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)}
	fetcher := &mapFetcher{responses: map[string][]byte{
		titleURL("2025-03-10", 1): []byte("<doc1/>"),
		titleURL("2025-03-10", 5): []byte("<doc5/>"),
	}}

	res, err := newTestRunner(fetcher, clock).Run(context.Background(), []ecfr.Title{1, 5})
	require.NoError(t, err)
	require.Len(t, res.Documents, 2)
	require.Empty(t, res.Failures)
	require.Equal(t, "2025-03-10", res.Documents[1].Date)
	require.Equal(t, []byte("<doc5/>"), res.Documents[5].Body)
}

func TestRunFallsBackAcrossDates(t *testing.T) {
	t.Parallel()

	clock := fixedClock{now: time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)}
	// Title 2 only published three days ago; titles resolve independently.
	fetcher := &mapFetcher{responses: map[string][]byte{
		titleURL("2025-03-10", 1): []byte("<doc1/>"),
		titleURL("2025-03-07", 2): []byte("<doc2/>"),
	}}

	res, err := newTestRunner(fetcher, clock).Run(context.Background(), []ecfr.Title{1, 2})
	require.NoError(t, err)
	require.Equal(t, "2025-03-10", res.Documents[1].Date)
	require.Equal(t, "2025-03-07", res.Documents[2].Date)
}

func TestRunRecordsUnavailableTitleAndContinues(t *testing.T) {
	t.Parallel()

	clock := fixedClock{now: time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)}
	// Title 7 404s for today through today-4; the run still succeeds.
	fetcher := &mapFetcher{responses: map[string][]byte{
		titleURL("2025-03-10", 1): []byte("<doc1/>"),
	}}

	res, err := newTestRunner(fetcher, clock).Run(context.Background(), []ecfr.Title{1, 7})
	require.NoError(t, err)
	require.Len(t, res.Documents, 1)
	require.ErrorIs(t, res.Failures[7], ecfr.ErrDateUnavailable)

	// 1 probe for title 1 plus the full 5-day window for title 7.
	require.Equal(t, 6, fetcher.callCount())
}

func TestRunTerminalFailureIsIsolated(t *testing.T) {
	t.Parallel()

	clock := fixedClock{now: time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)}
	u := titleURL("2025-03-10", 3)
	fetcher := &mapFetcher{
		responses: map[string][]byte{
			titleURL("2025-03-10", 1): []byte("<doc1/>"),
		},
		errs: map[string]error{
			u: &ecfr.FetchError{Status: 503, URL: u, Attempts: 5},
		},
	}

	res, err := newTestRunner(fetcher, clock).Run(context.Background(), []ecfr.Title{1, 3})
	require.NoError(t, err)
	require.Len(t, res.Documents, 1)

	var fetchErr *ecfr.FetchError
	require.ErrorAs(t, res.Failures[3], &fetchErr)
	require.Equal(t, 503, fetchErr.Status)
}

func TestRunAllTitlesFailingIsFatal(t *testing.T) {
	t.Parallel()

	clock := fixedClock{now: time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)}
	fetcher := &mapFetcher{} // everything 404s

	res, err := newTestRunner(fetcher, clock).Run(context.Background(), []ecfr.Title{1, 2, 3})
	require.ErrorIs(t, err, ecfr.ErrEmptyResult)
	require.Empty(t, res.Documents)
	require.Len(t, res.Failures, 3)
}

func TestRunEmptyTitleListIsFatal(t *testing.T) {
	t.Parallel()

	clock := fixedClock{now: time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)}
	_, err := newTestRunner(&mapFetcher{}, clock).Run(context.Background(), nil)
	require.ErrorIs(t, err, ecfr.ErrEmptyResult)
}

func TestRunHonorsCancellation(t *testing.T) {
	t.Parallel()

	clock := fixedClock{now: time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestRunner(&mapFetcher{}, clock).Run(ctx, []ecfr.Title{1})
	require.Error(t, err)
	require.NotErrorIs(t, err, ecfr.ErrEmptyResult)
}
