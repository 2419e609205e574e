package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/goodtune/kreport/internal/metrics"
	"github.com/goodtune/kreport/internal/report"
)

// ReportViews handles report and active child requests.
type ReportViews struct {
	deps   Deps
	logger zerolog.Logger
}

// NewReportViews creates a new report views instance.
func NewReportViews(deps Deps, logger zerolog.Logger) *ReportViews {
	return &ReportViews{
		deps:   deps,
		logger: logger.With().Str("handler", "report").Logger(),
	}
}

type reportResponse struct {
	report.UsageReport
	UsedMinutes      int64 `json:"used_minutes"`
	LimitMinutes     int64 `json:"limit_minutes"`
	RemainingMinutes int64 `json:"remaining_minutes"`
}

func newReportResponse(r report.UsageReport) reportResponse {
	return reportResponse{
		UsageReport:      r,
		UsedMinutes:      r.UsedMinutes(),
		LimitMinutes:     r.LimitMinutes(),
		RemainingMinutes: r.RemainingMinutes(),
	}
}

// Report builds and returns a child's report for the current window.
func (v *ReportViews) Report(ctx *gin.Context) {
	childID := ctx.Param("id")

	r, err := v.deps.Builder.Build(ctx.Request.Context(), childID)
	if err != nil {
		v.logger.Error().Err(err).Str("child_id", childID).Msg("Failed to build report")
		serverError(ctx, report.ErrorMessage)
		return
	}

	ctx.JSON(http.StatusOK, newReportResponse(r))
}

// Dashboard returns the dashboard state for the active child.
func (v *ReportViews) Dashboard(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{
		"active_child": v.deps.Controller.Current(),
		"dashboard":    v.deps.View.Snapshot(),
	})
}

// GetActiveChild returns the stored active child.
func (v *ReportViews) GetActiveChild(ctx *gin.Context) {
	childID, err := v.deps.Store.ActiveChild().Get(ctx.Request.Context())
	if err != nil {
		v.logger.Error().Err(err).Msg("Failed to read active child")
		serverError(ctx, "Failed to read active child")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"child_id": childID})
}

type activeChildRequest struct {
	ChildID string `json:"child_id"`
}

// SetActiveChild stores the active child and regenerates the dashboard.
func (v *ReportViews) SetActiveChild(ctx *gin.Context) {
	var req activeChildRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, "Invalid request body")
		return
	}
	req.ChildID = strings.TrimSpace(req.ChildID)

	if err := v.deps.Store.ActiveChild().Set(ctx.Request.Context(), req.ChildID); err != nil {
		v.logger.Error().Err(err).Str("child_id", req.ChildID).Msg("Failed to store active child")
		serverError(ctx, "Failed to store active child")
		return
	}

	metrics.ActiveChildChanges.WithLabelValues("api").Inc()
	gen := v.deps.Controller.Trigger(req.ChildID)

	ctx.JSON(http.StatusOK, gin.H{
		"child_id":   req.ChildID,
		"generation": gen,
	})
}
