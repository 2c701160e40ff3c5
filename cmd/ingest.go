package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"sort"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/ecfr-snapshot/internal/aggregate"
	"github.com/JakeFAU/ecfr-snapshot/internal/client"
	"github.com/JakeFAU/ecfr-snapshot/internal/clock/system"
	"github.com/JakeFAU/ecfr-snapshot/internal/config"
	"github.com/JakeFAU/ecfr-snapshot/internal/discovery"
	"github.com/JakeFAU/ecfr-snapshot/internal/ecfr"
	"github.com/JakeFAU/ecfr-snapshot/internal/hash/sha256"
	"github.com/JakeFAU/ecfr-snapshot/internal/id/uuid"
	"github.com/JakeFAU/ecfr-snapshot/internal/ingest"
	"github.com/JakeFAU/ecfr-snapshot/internal/metrics"
	"github.com/JakeFAU/ecfr-snapshot/internal/ratelimit"
	"github.com/JakeFAU/ecfr-snapshot/internal/snapshot"
)

// volatilityHistoryLimit caps the stored volatility series.
const volatilityHistoryLimit = 90

// newIngestCmd creates the 'ingest' subcommand. With no arguments it
// discovers the full title list from the remote API; explicit title numbers
// bypass discovery, which is handy for re-running a few failed titles.
func newIngestCmd(cfg *config.Config, logger **zap.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest [titles...]",
		Short: "Runs one full ingestion pass and writes a new snapshot",
		Long: `Fetches the full XML of each regulation title at the most recent
available date, aggregates per-agency word counts and checksums, and
atomically replaces the snapshot file. The prior snapshot stays intact
if every title fails.`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runIngest(ctx, *cfg, *logger, args)
		},
	}
}

func runIngest(ctx context.Context, cfg config.Config, logger *zap.Logger, args []string) error {
	clk := system.New()
	idGen := uuid.New()

	runID, err := idGen.NewID()
	if err != nil {
		return fmt.Errorf("generate run id: %w", err)
	}
	log := logger.With(zap.String("run_id", runID))
	started := clk.Now()
	log.Info("ingestion run starting")

	limiter := ratelimit.New(ratelimit.Config{
		MaxInFlight:       cfg.Ingest.Concurrency,
		RequestsPerSecond: cfg.Ingest.RequestsPerSecond,
		CooldownOn429:     cfg.Ingest.CooldownOn429,
	})
	fetcher := client.New(client.Config{
		UserAgent:   cfg.API.UserAgent,
		Timeout:     cfg.AttemptTimeout(),
		MaxAttempts: cfg.HTTP.MaxRetries,
		Backoff: client.BackoffPolicy{
			Base: cfg.BackoffBase(),
			Max:  cfg.BackoffMax(),
		},
		OnThrottle: limiter.Cooldown,
	}, log)

	titles, err := resolveTitles(ctx, fetcher, cfg, log, args)
	if err != nil {
		return err
	}

	runner := ingest.New(fetcher, limiter, clk, ingest.Config{
		BaseURL:      cfg.API.BaseURL,
		FallbackDays: cfg.Ingest.DateFallbackDays,
	}, log)
	result, err := runner.Run(ctx, titles)
	if err != nil && !errors.Is(err, ecfr.ErrEmptyResult) {
		return fmt.Errorf("ingestion run: %w", err)
	}

	agencies, aggFailures := aggregate.New(sha256.New(), log).Aggregate(result.Documents)
	for title, aggErr := range aggFailures {
		result.Failures[title] = aggErr
	}

	summary := buildSummary(runID, started, clk.Now(), result)
	logSummary(log, summary)

	// A run that produced no usable documents must not touch the snapshot.
	if len(agencies) == 0 {
		return fmt.Errorf("ingestion produced no usable documents: %w", ecfr.ErrEmptyResult)
	}

	store, err := snapshot.NewFileStore(cfg.Snapshot.Path, log)
	if err != nil {
		return err
	}
	snap := buildSnapshot(ctx, store, agencies, started.Format("2006-01-02"), log)
	if err := store.Write(ctx, snap); err != nil {
		return fmt.Errorf("persist snapshot: %w", err)
	}
	metrics.SetSnapshotAgencies(len(snap.Agencies))

	mirrorSnapshot(ctx, cfg, snap, log)
	return nil
}

// resolveTitles parses explicit title arguments or falls back to discovery.
func resolveTitles(ctx context.Context, fetcher ecfr.Fetcher, cfg config.Config, log *zap.Logger, args []string) ([]ecfr.Title, error) {
	if len(args) == 0 {
		svc := discovery.New(fetcher, cfg.API.BaseURL, log)
		titles, err := svc.Discover(ctx)
		if err != nil {
			return nil, fmt.Errorf("discover titles: %w", err)
		}
		return titles, nil
	}

	titles := make([]ecfr.Title, 0, len(args))
	for _, arg := range args {
		n, err := strconv.Atoi(arg)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid title number %q", arg)
		}
		titles = append(titles, ecfr.Title(n))
	}
	return titles, nil
}

// buildSnapshot folds the new agency metrics together with the volatility
// series carried forward from the prior snapshot.
func buildSnapshot(ctx context.Context, store snapshot.Store, agencies map[string]ecfr.AgencyMetrics, asOf string, log *zap.Logger) ecfr.Snapshot {
	snap := ecfr.Snapshot{AsOfDate: asOf, Agencies: agencies}

	prev, err := store.Load(ctx)
	if err != nil {
		if !errors.Is(err, snapshot.ErrNoSnapshot) {
			log.Warn("prior snapshot unreadable, volatility series restarts", zap.Error(err))
		}
		return snap
	}

	point := ecfr.VolatilityPoint{
		Date:  asOf,
		Value: ecfr.RelativeVolatility(prev.Agencies, agencies),
	}
	series := append(prev.Volatility, point)
	if len(series) > volatilityHistoryLimit {
		series = series[len(series)-volatilityHistoryLimit:]
	}
	snap.Volatility = series
	return snap
}

// mirrorSnapshot uploads to GCS when configured. Mirror failures are logged
// but never fail the run; the local snapshot is the source of truth.
func mirrorSnapshot(ctx context.Context, cfg config.Config, snap ecfr.Snapshot, log *zap.Logger) {
	if cfg.Snapshot.GCSBucket == "" {
		return
	}
	mirror, err := snapshot.NewGCSMirror(ctx, cfg.Snapshot.GCSBucket, cfg.Snapshot.GCSObject, log)
	if err != nil {
		log.Warn("gcs mirror unavailable", zap.Error(err))
		return
	}
	defer func() {
		if cerr := mirror.Close(); cerr != nil {
			log.Warn("close gcs mirror", zap.Error(cerr))
		}
	}()
	if err := mirror.Upload(ctx, snap); err != nil {
		log.Warn("gcs mirror upload failed", zap.Error(err))
	}
}

func buildSummary(runID string, started, finished time.Time, result ingest.Result) ecfr.RunSummary {
	summary := ecfr.RunSummary{
		RunID:     runID,
		Started:   started,
		Finished:  finished,
		Succeeded: len(result.Documents),
		Errors:    make(map[ecfr.Title]string, len(result.Failures)),
	}
	for title, err := range result.Failures {
		if errors.Is(err, ecfr.ErrDateUnavailable) {
			summary.Skipped++
		} else {
			summary.Failed++
		}
		summary.Errors[title] = err.Error()
	}
	return summary
}

func logSummary(log *zap.Logger, summary ecfr.RunSummary) {
	fields := []zap.Field{
		zap.Duration("duration", summary.Finished.Sub(summary.Started)),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed),
	}
	if len(summary.Errors) > 0 {
		titles := make([]int, 0, len(summary.Errors))
		for t := range summary.Errors {
			titles = append(titles, int(t))
		}
		sort.Ints(titles)
		fields = append(fields, zap.Ints("problem_titles", titles))
	}
	log.Info("ingestion run finished", fields...)
	for t, msg := range summary.Errors {
		log.Warn("title not ingested", zap.Int("title", int(t)), zap.String("reason", msg))
	}
}
