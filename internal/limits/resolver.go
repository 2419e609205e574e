// Package limits resolves a child's effective daily screen-time limit.
package limits

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/goodtune/kreport/internal/metrics"
	"github.com/goodtune/kreport/internal/storage"
)

// Tier names the source a limit was resolved from.
type Tier string

const (
	TierOverride     Tier = "override"
	TierChildSetting Tier = "childSetting"
	TierDefault      Tier = "default"
)

// DefaultSeconds is the limit applied when no tier provides one (120 minutes).
const DefaultSeconds int64 = 7200

// Limit is a resolved daily limit.
type Limit struct {
	Seconds int64 `json:"seconds"`
	Tier    Tier  `json:"tier"`
}

// Minutes returns the limit rounded to the nearest minute.
func (l Limit) Minutes() int64 {
	return int64(math.Round(float64(l.Seconds) / 60))
}

// fallback reasons
const (
	reasonNotFound    = "not_found"
	reasonError       = "error"
	reasonTimeout     = "timeout"
	reasonMalformed   = "malformed"
	reasonNonPositive = "non_positive"
)

// Resolver applies override > child setting > default precedence. Tiers are
// looked up concurrently and Resolve waits for all of them before choosing.
type Resolver struct {
	settings       storage.SettingsStore
	limits         storage.LimitStore
	defaultSeconds int64
	timeout        time.Duration
	logger         zerolog.Logger
}

// NewResolver creates a Resolver. A non-positive defaultMinutes falls back to
// DefaultSeconds; a non-positive timeout leaves lookups bounded only by ctx.
func NewResolver(settings storage.SettingsStore, limits storage.LimitStore, defaultMinutes int, timeout time.Duration, logger zerolog.Logger) *Resolver {
	def := DefaultSeconds
	if defaultMinutes > 0 {
		def = int64(defaultMinutes) * 60
	}
	return &Resolver{
		settings:       settings,
		limits:         limits,
		defaultSeconds: def,
		timeout:        timeout,
		logger:         logger.With().Str("component", "limits").Logger(),
	}
}

type tierResult struct {
	seconds int64
	ok      bool
}

// Resolve returns the effective limit for childID. It never fails: an absent,
// failed, timed out or invalid tier falls through to the next one.
func (r *Resolver) Resolve(ctx context.Context, childID string) Limit {
	var (
		wg       sync.WaitGroup
		override tierResult
		setting  tierResult
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		override = r.lookup(ctx, childID, TierOverride, r.fetchOverride)
	}()
	go func() {
		defer wg.Done()
		setting = r.lookup(ctx, childID, TierChildSetting, r.fetchSetting)
	}()
	wg.Wait()

	var limit Limit
	switch {
	case override.ok:
		limit = Limit{Seconds: override.seconds, Tier: TierOverride}
	case setting.ok:
		limit = Limit{Seconds: setting.seconds, Tier: TierChildSetting}
	default:
		limit = Limit{Seconds: r.defaultSeconds, Tier: TierDefault}
	}

	metrics.LimitResolutions.WithLabelValues(string(limit.Tier)).Inc()
	r.logger.Debug().
		Str("child_id", childID).
		Str("tier", string(limit.Tier)).
		Int64("seconds", limit.Seconds).
		Msg("Resolved daily limit")

	return limit
}

func (r *Resolver) fetchOverride(ctx context.Context, childID string) (storage.RawValue, float64, error) {
	o, err := r.limits.FetchTimeLimitOverride(ctx, childID)
	if err != nil {
		return "", 0, err
	}
	return o.DailyLimitSeconds, 1, nil
}

func (r *Resolver) fetchSetting(ctx context.Context, childID string) (storage.RawValue, float64, error) {
	s, err := r.settings.FetchChildSetting(ctx, childID)
	if err != nil {
		return "", 0, err
	}
	return s.TimeLimitMinutes, 60, nil
}

// lookup runs one tier fetch under the per-tier timeout and converts the raw
// value into whole seconds using the tier's multiplier.
func (r *Resolver) lookup(ctx context.Context, childID string, tier Tier,
	fetch func(context.Context, string) (storage.RawValue, float64, error)) tierResult {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	raw, multiplier, err := fetch(ctx, childID)
	if err != nil {
		reason := reasonError
		switch {
		case errors.Is(err, storage.ErrNotFound):
			reason = reasonNotFound
		case errors.Is(err, context.DeadlineExceeded):
			reason = reasonTimeout
		}
		r.fallback(childID, tier, reason, err)
		return tierResult{}
	}

	v, ok := raw.Float()
	if !ok {
		metrics.MalformedRecords.WithLabelValues(string(tier)).Inc()
		r.fallback(childID, tier, reasonMalformed, nil)
		return tierResult{}
	}

	seconds := int64(math.Round(v * multiplier))
	if seconds <= 0 {
		r.fallback(childID, tier, reasonNonPositive, nil)
		return tierResult{}
	}

	return tierResult{seconds: seconds, ok: true}
}

func (r *Resolver) fallback(childID string, tier Tier, reason string, err error) {
	metrics.LimitTierFallbacks.WithLabelValues(string(tier), reason).Inc()

	// A missing record is the normal case for most children
	ev := r.logger.Warn()
	if reason == reasonNotFound {
		ev = r.logger.Debug()
	}
	ev.Err(err).
		Str("child_id", childID).
		Str("tier", string(tier)).
		Str("reason", reason).
		Msg("Limit tier unavailable, falling through")
}
