// Package ecfr defines core types shared across the ingestion subsystems.
package ecfr

import (
	"time"
)

// Title identifies a numbered partition of the regulatory corpus. Titles are
// the unit of fetch granularity; the set is enumerated once per ingestion run.
type Title int

// TitleInfo is one entry from the versioner title-listing endpoint.
type TitleInfo struct {
	Number       int    `json:"number"`
	Name         string `json:"name"`
	Reserved     bool   `json:"reserved"`
	UpToDateAsOf string `json:"up_to_date_as_of"`
}

// RawDocument is the full XML body returned for a title at a resolved date.
// It is never mutated after fetch.
type RawDocument struct {
	Title Title
	// Date is the as-of date (YYYY-MM-DD) the content resolved at. Titles
	// publish on different cadences, so dates may differ within one run.
	Date string
	Body []byte
}

// AgencyMetrics holds the aggregate numbers for one agency. WordCount and
// Checksum are always derived from the same extraction pass.
type AgencyMetrics struct {
	Agency    string `json:"name"`
	WordCount int    `json:"wordCount"`
	Checksum  string `json:"checksum"`
}

// VolatilityPoint is one entry in the snapshot's derived volatility series.
type VolatilityPoint struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

// Snapshot is the persisted, point-in-time result of one ingestion run. It
// fully replaces the prior snapshot on disk and is immutable once written.
type Snapshot struct {
	AsOfDate   string
	Agencies   map[string]AgencyMetrics
	Volatility []VolatilityPoint
}

// RunSummary is the primary user-visible signal of an ingestion run.
type RunSummary struct {
	RunID     string           `json:"run_id"`
	Started   time.Time        `json:"started_at"`
	Finished  time.Time        `json:"finished_at"`
	Succeeded int              `json:"succeeded"`
	Skipped   int              `json:"skipped"`
	Failed    int              `json:"failed"`
	Errors    map[Title]string `json:"errors,omitempty"`
}

// RelativeVolatility compares two agency maps and returns the total relative
// word-count movement between them. Agencies absent from one side count as
// zero words there.
func RelativeVolatility(prev, curr map[string]AgencyMetrics) float64 {
	var moved, prevTotal int
	seen := make(map[string]struct{}, len(prev))
	for name, p := range prev {
		seen[name] = struct{}{}
		prevTotal += p.WordCount
		moved += abs(curr[name].WordCount - p.WordCount)
	}
	for name, c := range curr {
		if _, ok := seen[name]; ok {
			continue
		}
		moved += c.WordCount
	}
	if prevTotal < 1 {
		prevTotal = 1
	}
	return float64(moved) / float64(prevTotal)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
