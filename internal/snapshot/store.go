// Package snapshot persists and loads the aggregate result of an ingestion run.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/JakeFAU/ecfr-snapshot/internal/ecfr"
)

// ErrNoSnapshot is returned by Load when no snapshot has been written yet.
var ErrNoSnapshot = errors.New("snapshot not found")

// Store reads and writes the single flat snapshot. Write fully replaces any
// prior content.
type Store interface {
	Write(ctx context.Context, snap ecfr.Snapshot) error
	Load(ctx context.Context) (ecfr.Snapshot, error)
}

// snapshotFile is the on-disk schema:
// {asOfDate, agencies:[{name,wordCount,checksum}], volatility?:[{date,value}]}.
type snapshotFile struct {
	AsOfDate   string                 `json:"asOfDate"`
	Agencies   []ecfr.AgencyMetrics   `json:"agencies"`
	Volatility []ecfr.VolatilityPoint `json:"volatility,omitempty"`
}

// Marshal serializes a snapshot with agencies sorted by name so the file is
// byte-stable across runs with identical input.
func Marshal(snap ecfr.Snapshot) ([]byte, error) {
	file := snapshotFile{
		AsOfDate:   snap.AsOfDate,
		Agencies:   make([]ecfr.AgencyMetrics, 0, len(snap.Agencies)),
		Volatility: snap.Volatility,
	}
	for _, m := range snap.Agencies {
		file.Agencies = append(file.Agencies, m)
	}
	sort.Slice(file.Agencies, func(i, j int) bool {
		return file.Agencies[i].Agency < file.Agencies[j].Agency
	})

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	return data, nil
}

// Unmarshal parses the on-disk schema back into a snapshot.
func Unmarshal(data []byte) (ecfr.Snapshot, error) {
	var file snapshotFile
	if err := json.Unmarshal(data, &file); err != nil {
		return ecfr.Snapshot{}, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	snap := ecfr.Snapshot{
		AsOfDate:   file.AsOfDate,
		Agencies:   make(map[string]ecfr.AgencyMetrics, len(file.Agencies)),
		Volatility: file.Volatility,
	}
	for _, m := range file.Agencies {
		snap.Agencies[m.Agency] = m
	}
	return snap, nil
}
