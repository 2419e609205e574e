package report

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/goodtune/kreport/internal/limits"
	"github.com/goodtune/kreport/internal/metrics"
	"github.com/goodtune/kreport/internal/storage"
	"github.com/goodtune/kreport/internal/usage"
)

// LimitResolver resolves a child's daily limit without failing.
type LimitResolver interface {
	Resolve(ctx context.Context, childID string) limits.Limit
}

// reportActions are the actions a report reads.
var reportActions = []storage.Action{
	storage.ActionAllowed,
	storage.ActionBlocked,
	storage.ActionTimeExceeded,
}

// Builder fetches a child's snapshot and composes it into a UsageReport.
// Concurrent Build calls share no mutable state.
type Builder struct {
	activity     storage.ActivityStore
	resolver     LimitResolver
	pipeline     Pipeline
	resetTime    usage.ResetTime
	clock        usage.Clock
	fetchTimeout time.Duration
	logger       zerolog.Logger
}

// BuilderConfig holds builder configuration
type BuilderConfig struct {
	ResetTime    usage.ResetTime
	FetchTimeout time.Duration
	Clock        usage.Clock
}

// NewBuilder creates a new report builder
func NewBuilder(activity storage.ActivityStore, resolver LimitResolver, pipeline Pipeline, cfg BuilderConfig, logger zerolog.Logger) *Builder {
	if cfg.Clock == nil {
		cfg.Clock = usage.RealClock{}
	}
	return &Builder{
		activity:     activity,
		resolver:     resolver,
		pipeline:     pipeline,
		resetTime:    cfg.ResetTime,
		clock:        cfg.Clock,
		fetchTimeout: cfg.FetchTimeout,
		logger:       logger.With().Str("component", "report-builder").Logger(),
	}
}

// Build produces the report for childID over the current reporting window.
// The limit lookup and the activity fetch run concurrently; a failed activity
// fetch degrades to an empty log set. Build only fails when ctx is done, in
// which case the sibling lookup is cancelled and the report abandoned.
func (b *Builder) Build(ctx context.Context, childID string) (UsageReport, error) {
	start := time.Now()
	windowStart := b.resetTime.WindowStart(b.clock.Now())

	var (
		limit  limits.Limit
		events []storage.ActivityEvent
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		limit = b.resolver.Resolve(gctx, childID)
		// The resolver falls back instead of failing; a default
		// produced by cancellation must not be reported.
		return gctx.Err()
	})
	g.Go(func() error {
		var err error
		events, err = b.fetchActivity(gctx, childID, windowStart)
		return err
	})

	if err := g.Wait(); err != nil {
		metrics.ReportsGenerated.WithLabelValues("cancelled").Inc()
		return UsageReport{}, fmt.Errorf("report for %s abandoned: %w", childID, err)
	}

	r := b.pipeline.Compose(childID, windowStart, limit, events)

	metrics.ReportsGenerated.WithLabelValues("ok").Inc()
	metrics.ReportDuration.Observe(time.Since(start).Seconds())
	b.logger.Debug().
		Str("child_id", childID).
		Int64("used_seconds", r.TotalUsedSeconds).
		Int64("limit_seconds", r.LimitSeconds).
		Int("attempts", r.AttemptCount).
		Int("rows", len(r.Rows)).
		Dur("duration", time.Since(start)).
		Msg("Report built")

	return r, nil
}

// fetchActivity returns the child's events since the window start. Store
// failures degrade to an empty set; only cancellation of ctx is an error.
func (b *Builder) fetchActivity(ctx context.Context, childID string, since time.Time) ([]storage.ActivityEvent, error) {
	fetchCtx := ctx
	if b.fetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, b.fetchTimeout)
		defer cancel()
	}

	events, err := b.activity.FetchActivityLogs(fetchCtx, childID, since, reportActions...)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		metrics.ActivityFetchFailures.Inc()
		b.logger.Warn().Err(err).
			Str("child_id", childID).
			Time("since", since).
			Msg("Activity fetch failed, reporting empty log set")
		return nil, nil
	}
	return events, nil
}
