// Package ingest runs the per-title fetch pool with date fallback.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/ecfr-snapshot/internal/ecfr"
	"github.com/JakeFAU/ecfr-snapshot/internal/metrics"
	"github.com/JakeFAU/ecfr-snapshot/internal/ratelimit"
)

// Config controls Runner behavior.
type Config struct {
	BaseURL string
	// FallbackDays is how many calendar days (starting today) to probe per
	// title before recording it unavailable. Defaults to 5.
	FallbackDays int
}

// Result collects per-title outcomes of one run. A title appears in exactly
// one of the two maps.
type Result struct {
	Documents map[ecfr.Title]ecfr.RawDocument
	Failures  map[ecfr.Title]error
}

// Runner executes one fetch task per title under the rate limiter. A single
// title's failure never aborts the run.
type Runner struct {
	fetcher ecfr.Fetcher
	limiter *ratelimit.Limiter
	clock   ecfr.Clock
	cfg     Config
	logger  *zap.Logger
}

// New constructs a Runner.
func New(fetcher ecfr.Fetcher, limiter *ratelimit.Limiter, clock ecfr.Clock, cfg Config, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.FallbackDays <= 0 {
		cfg.FallbackDays = 5
	}
	return &Runner{
		fetcher: fetcher,
		limiter: limiter,
		clock:   clock,
		cfg:     cfg,
		logger:  logger,
	}
}

// Run fetches every title concurrently and returns whatever succeeded plus
// the per-title failures. It returns ecfr.ErrEmptyResult when nothing
// succeeded, and the context error when the whole run is canceled.
func (r *Runner) Run(ctx context.Context, titles []ecfr.Title) (Result, error) {
	res := Result{
		Documents: make(map[ecfr.Title]ecfr.RawDocument, len(titles)),
		Failures:  make(map[ecfr.Title]error),
	}
	if len(titles) == 0 {
		return res, ecfr.ErrEmptyResult
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, title := range titles {
		g.Go(func() error {
			doc, err := r.fetchTitle(gctx, title)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				mu.Lock()
				res.Failures[title] = err
				mu.Unlock()
				if errors.Is(err, ecfr.ErrDateUnavailable) {
					metrics.ObserveTitle(metrics.OutcomeSkipped)
					r.logger.Warn("title unavailable in fallback window", zap.Int("title", int(title)))
				} else {
					metrics.ObserveTitle(metrics.OutcomeFailed)
					r.logger.Error("title fetch failed", zap.Int("title", int(title)), zap.Error(err))
				}
				return nil
			}
			mu.Lock()
			res.Documents[title] = doc
			mu.Unlock()
			metrics.ObserveTitle(metrics.OutcomeFetched)
			r.logger.Info("title fetched",
				zap.Int("title", int(title)),
				zap.String("as_of", doc.Date),
				zap.Int("bytes", len(doc.Body)),
			)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, fmt.Errorf("ingestion canceled: %w", err)
	}
	if len(res.Documents) == 0 {
		return res, ecfr.ErrEmptyResult
	}
	return res, nil
}

// fetchTitle resolves the as-of date for one title by probing today backward
// through the fallback window. A 404 means "try an earlier day"; titles
// resolve dates independently since publication cadence varies.
func (r *Runner) fetchTitle(ctx context.Context, title ecfr.Title) (ecfr.RawDocument, error) {
	release, err := r.limiter.Acquire(ctx)
	if err != nil {
		return ecfr.RawDocument{}, err
	}
	defer release()

	now := r.clock.Now()
	for day := 0; day < r.cfg.FallbackDays; day++ {
		date := now.AddDate(0, 0, -day).Format("2006-01-02")
		url := fmt.Sprintf("%s/api/versioner/v1/full/%s/title-%02d.xml", r.cfg.BaseURL, date, int(title))

		body, err := r.fetcher.Fetch(ctx, url)
		if err == nil {
			return ecfr.RawDocument{Title: title, Date: date, Body: body}, nil
		}
		if errors.Is(err, ecfr.ErrTitleNotFound) {
			continue
		}
		return ecfr.RawDocument{}, fmt.Errorf("title %d: %w", title, err)
	}
	return ecfr.RawDocument{}, fmt.Errorf("title %d: %w", title, ecfr.ErrDateUnavailable)
}
