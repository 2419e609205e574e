// Package dashboard holds the presentation state for the active child's
// usage overview.
package dashboard

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/goodtune/kreport/internal/report"
	"github.com/goodtune/kreport/internal/usage"
)

// Status is the state of the dashboard.
type Status string

const (
	StatusNoChild Status = "no_child"
	StatusLoading Status = "loading"
	StatusReady   Status = "ready"
	StatusError   Status = "error"
)

// Placeholder texts
const (
	Placeholder       = "—"
	SelectChildText   = "Select a child"
	SelectFirstText   = "Select a child first"
	LoadingText       = "Loading…"
	NoAttemptsText    = "No blocked attempts today"
	NoUsageText       = "No data"
	historyTimeFormat = "15:04:05"
)

// HistoryEntry is one row of the blocked-attempt history.
type HistoryEntry struct {
	Site string `json:"site"`
	Time string `json:"time"`
}

// Snapshot is a point-in-time copy of the dashboard state.
type Snapshot struct {
	Status       Status              `json:"status"`
	ChildID      string              `json:"child_id,omitempty"`
	LimitText    string              `json:"limit_text"`
	UsedText     string              `json:"used_text"`
	AttemptsText string              `json:"attempts_text"`
	Message      string              `json:"message,omitempty"`
	History      []HistoryEntry      `json:"history"`
	HistoryNote  string              `json:"history_note,omitempty"`
	Rows         []usage.Row         `json:"rows"`
	RowsNote     string              `json:"rows_note,omitempty"`
	Chart        *ChartData          `json:"chart,omitempty"`
	Report       *report.UsageReport `json:"report,omitempty"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

// View implements report.Presenter. It owns the doughnut chart: the current
// chart is closed before a replacement is created.
type View struct {
	mu     sync.RWMutex
	charts ChartFactory
	chart  Chart
	state  Snapshot
	now    func() time.Time
	logger zerolog.Logger
}

// NewView creates a View in the no-child state.
func NewView(charts ChartFactory, logger zerolog.Logger) *View {
	v := &View{
		charts: charts,
		now:    time.Now,
		logger: logger.With().Str("component", "dashboard").Logger(),
	}
	v.state = v.placeholders(StatusNoChild, "", SelectFirstText)
	v.state.LimitText = SelectChildText
	return v
}

// Snapshot returns a copy of the current state.
func (v *View) Snapshot() Snapshot {
	v.mu.RLock()
	defer v.mu.RUnlock()

	s := v.state
	s.History = append([]HistoryEntry(nil), v.state.History...)
	s.Rows = append([]usage.Row(nil), v.state.Rows...)
	if v.chart != nil {
		if data, err := v.chart.Data(); err == nil {
			s.Chart = &data
		}
	}
	return s
}

// RenderUsageReport implements report.Presenter.
func (v *View) RenderUsageReport(r report.UsageReport) {
	v.mu.Lock()
	defer v.mu.Unlock()

	history := make([]HistoryEntry, 0, len(r.Attempts))
	for _, a := range r.Attempts {
		entry := HistoryEntry{Site: a.Domain}
		if a.Timestamp != nil {
			entry.Time = a.Timestamp.Local().Format(historyTimeFormat)
		}
		history = append(history, entry)
	}

	var historyNote, rowsNote string
	if len(history) == 0 {
		historyNote = NoAttemptsText
	}
	if len(r.Rows) == 0 {
		rowsNote = NoUsageText
	}

	rc := r
	v.state = Snapshot{
		Status:       StatusReady,
		ChildID:      r.ChildID,
		LimitText:    fmt.Sprintf("%d min max", r.LimitMinutes()),
		UsedText:     fmt.Sprintf("%d min", r.UsedMinutes()),
		AttemptsText: fmt.Sprintf("%d", r.AttemptCount),
		History:      history,
		HistoryNote:  historyNote,
		Rows:         r.Rows,
		RowsNote:     rowsNote,
		Report:       &rc,
		UpdatedAt:    v.now(),
	}

	v.replaceChart(UsageChartData(r.UsedMinutes(), r.RemainingMinutes()))
}

// RenderNoChildSelected implements report.Presenter.
func (v *View) RenderNoChildSelected() {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.closeChart()
	v.state = v.placeholders(StatusNoChild, "", SelectFirstText)
	v.state.LimitText = SelectChildText
}

// RenderLoading implements report.Presenter. The snapshot names the child
// being loaded; the previous chart stays until its report arrives.
func (v *View) RenderLoading(childID string) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.state = v.placeholders(StatusLoading, childID, LoadingText)
}

// RenderError implements report.Presenter. All figures reset together.
func (v *View) RenderError(message string) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.closeChart()
	v.state = v.placeholders(StatusError, v.state.ChildID, message)
}

// Close releases the chart.
func (v *View) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closeChart()
}

func (v *View) placeholders(status Status, childID, message string) Snapshot {
	return Snapshot{
		Status:       status,
		ChildID:      childID,
		LimitText:    Placeholder,
		UsedText:     Placeholder,
		AttemptsText: Placeholder,
		Message:      message,
		UpdatedAt:    v.now(),
	}
}

// replaceChart closes the current chart, then builds the new one.
func (v *View) replaceChart(data ChartData) {
	v.closeChart()

	chart, err := v.charts.NewChart(data)
	if err != nil {
		v.logger.Error().Err(err).Msg("Failed to create usage chart")
		return
	}
	v.chart = chart
}

func (v *View) closeChart() {
	if v.chart == nil {
		return
	}
	if err := v.chart.Close(); err != nil {
		v.logger.Warn().Err(err).Msg("Failed to close usage chart")
	}
	v.chart = nil
}
