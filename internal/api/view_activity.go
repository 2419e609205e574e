package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/goodtune/kreport/internal/metrics"
	"github.com/goodtune/kreport/internal/storage"
)

// MaxIngestBatch bounds the number of events accepted per request.
const MaxIngestBatch = 1000

// ActivityViews handles activity log requests.
type ActivityViews struct {
	deps   Deps
	logger zerolog.Logger
}

// NewActivityViews creates a new activity views instance.
func NewActivityViews(deps Deps, logger zerolog.Logger) *ActivityViews {
	return &ActivityViews{
		deps:   deps,
		logger: logger.With().Str("handler", "activity").Logger(),
	}
}

type ingestRequest struct {
	Events []storage.ActivityEvent `json:"events"`
}

// Ingest stores a batch of activity events for a child. Timestamps are RFC 3339
// or Unix milliseconds; anything else is kept verbatim, indexed by ingest time
// and reported as malformed.
func (v *ActivityViews) Ingest(ctx *gin.Context) {
	childID := ctx.Param("id")

	var req ingestRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, "Invalid request body")
		return
	}
	if len(req.Events) == 0 {
		badRequest(ctx, "No events supplied")
		return
	}
	if len(req.Events) > MaxIngestBatch {
		ctx.JSON(http.StatusRequestEntityTooLarge, gin.H{
			"error":   "too_large",
			"message": "Too many events in one batch",
		})
		return
	}

	for i := range req.Events {
		req.Events[i].ChildID = childID
		req.Events[i].ID = ""
		req.Events[i].RecordedAt = time.Time{}
	}

	if err := v.deps.Store.Activity().AddActivity(ctx.Request.Context(), req.Events...); err != nil {
		v.logger.Error().Err(err).Str("child_id", childID).Msg("Failed to store activity")
		serverError(ctx, "Failed to store activity")
		return
	}

	metrics.ActivityIngested.Add(float64(len(req.Events)))
	ctx.JSON(http.StatusAccepted, gin.H{
		"child_id": childID,
		"accepted": len(req.Events),
	})
}

// List returns a child's raw activity since the given time (default: the
// start of the current reporting window), optionally filtered by action.
func (v *ActivityViews) List(ctx *gin.Context) {
	childID := ctx.Param("id")

	since := v.deps.ResetTime.WindowStart(v.deps.Clock.Now())
	if s := ctx.Query("since"); s != "" {
		t, ok := storage.RawValue(s).Time()
		if !ok {
			badRequest(ctx, "Invalid since timestamp")
			return
		}
		since = t
	}

	var actions []storage.Action
	for _, a := range ctx.QueryArray("action") {
		actions = append(actions, storage.ParseAction(a))
	}

	events, err := v.deps.Store.Activity().FetchActivityLogs(ctx.Request.Context(), childID, since, actions...)
	if err != nil {
		v.logger.Error().Err(err).Str("child_id", childID).Msg("Failed to fetch activity")
		serverError(ctx, "Failed to retrieve activity")
		return
	}
	if events == nil {
		events = []storage.ActivityEvent{}
	}

	ctx.JSON(http.StatusOK, gin.H{
		"child_id": childID,
		"since":    since,
		"events":   events,
		"count":    len(events),
	})
}
