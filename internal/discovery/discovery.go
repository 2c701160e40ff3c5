// Package discovery queries the remote API for the set of published titles.
package discovery

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/ecfr-snapshot/internal/ecfr"
)

// Service resolves the title list once per ingestion run.
type Service struct {
	fetcher ecfr.Fetcher
	baseURL string
	logger  *zap.Logger
}

// New constructs a Service.
func New(fetcher ecfr.Fetcher, baseURL string, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		fetcher: fetcher,
		baseURL: baseURL,
		logger:  logger,
	}
}

type titleListing struct {
	Titles []ecfr.TitleInfo `json:"titles"`
}

// Discover fetches the title-listing endpoint and returns the numbers of all
// non-reserved titles. Any failure is a *ecfr.DiscoveryError and aborts the
// run: without a title list there is nothing to ingest.
func (s *Service) Discover(ctx context.Context) ([]ecfr.Title, error) {
	url := s.baseURL + "/api/versioner/v1/titles.json"
	body, err := s.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, &ecfr.DiscoveryError{Err: err}
	}

	var listing titleListing
	if err := json.Unmarshal(body, &listing); err != nil {
		return nil, &ecfr.DiscoveryError{Err: fmt.Errorf("decode listing: %w", err)}
	}
	if len(listing.Titles) == 0 {
		return nil, &ecfr.DiscoveryError{Err: fmt.Errorf("listing contained no titles")}
	}

	titles := make([]ecfr.Title, 0, len(listing.Titles))
	for _, info := range listing.Titles {
		if info.Reserved {
			s.logger.Debug("skipping reserved title", zap.Int("title", info.Number))
			continue
		}
		if info.Number <= 0 {
			continue
		}
		titles = append(titles, ecfr.Title(info.Number))
	}
	s.logger.Info("discovered titles", zap.Int("count", len(titles)))
	return titles, nil
}
