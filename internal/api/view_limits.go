package api

import (
	"math"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/goodtune/kreport/internal/storage"
)

// LimitViews handles time limit requests.
type LimitViews struct {
	deps   Deps
	logger zerolog.Logger
}

// NewLimitViews creates a new limit views instance.
func NewLimitViews(deps Deps, logger zerolog.Logger) *LimitViews {
	return &LimitViews{
		deps:   deps,
		logger: logger.With().Str("handler", "limits").Logger(),
	}
}

// GetLimit returns a child's effective limit and the tier it came from.
func (v *LimitViews) GetLimit(ctx *gin.Context) {
	limit := v.deps.Resolver.Resolve(ctx.Request.Context(), ctx.Param("id"))

	ctx.JSON(http.StatusOK, gin.H{
		"child_id": ctx.Param("id"),
		"seconds":  limit.Seconds,
		"minutes":  limit.Minutes(),
		"tier":     limit.Tier,
	})
}

type setLimitRequest struct {
	Hours             *float64 `json:"hours"`
	DailyLimitSeconds *int64   `json:"daily_limit_seconds"`
}

// LimitSeconds returns the requested limit in whole seconds.
func (r setLimitRequest) LimitSeconds() (int64, bool) {
	switch {
	case r.DailyLimitSeconds != nil:
		return *r.DailyLimitSeconds, *r.DailyLimitSeconds > 0
	case r.Hours != nil:
		h := *r.Hours
		if math.IsNaN(h) || math.IsInf(h, 0) || h <= 0 {
			return 0, false
		}
		s := int64(math.Round(h * 3600))
		return s, s > 0
	default:
		return 0, false
	}
}

// SetLimit saves a daily limit override. When the child is on the dashboard
// its report is regenerated.
func (v *LimitViews) SetLimit(ctx *gin.Context) {
	childID := ctx.Param("id")

	var req setLimitRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, "Invalid request body")
		return
	}

	seconds, ok := req.LimitSeconds()
	if !ok {
		badRequest(ctx, "A positive hours or daily_limit_seconds value is required")
		return
	}

	if err := v.deps.Store.Limits().SaveTimeLimitOverride(ctx.Request.Context(), childID, seconds); err != nil {
		v.logger.Error().Err(err).Str("child_id", childID).Msg("Failed to save limit")
		serverError(ctx, "Failed to save limit")
		return
	}

	v.logger.Info().Str("child_id", childID).Int64("seconds", seconds).Msg("Daily limit saved")

	_, regenerated := v.deps.Controller.RefreshIf(childID)

	ctx.JSON(http.StatusOK, gin.H{
		"child_id":            childID,
		"daily_limit_seconds": seconds,
		"regenerated":         regenerated,
	})
}

type setSettingsRequest struct {
	TimeLimitMinutes storage.RawValue `json:"time_limit_minutes"`
}

// SetSettings updates a child's general settings.
func (v *LimitViews) SetSettings(ctx *gin.Context) {
	childID := ctx.Param("id")

	var req setSettingsRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, "Invalid request body")
		return
	}

	if minutes, ok := req.TimeLimitMinutes.Float(); !ok || minutes <= 0 {
		badRequest(ctx, "time_limit_minutes must be a positive number")
		return
	}

	setting := storage.ChildSetting{ChildID: childID, TimeLimitMinutes: req.TimeLimitMinutes}
	if err := v.deps.Store.Settings().UpsertChildSetting(ctx.Request.Context(), setting); err != nil {
		v.logger.Error().Err(err).Str("child_id", childID).Msg("Failed to save settings")
		serverError(ctx, "Failed to save settings")
		return
	}

	v.deps.Controller.RefreshIf(childID)

	ctx.JSON(http.StatusOK, setting)
}
