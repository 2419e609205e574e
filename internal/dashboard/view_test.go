package dashboard

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/goodtune/kreport/internal/limits"
	"github.com/goodtune/kreport/internal/report"
	"github.com/goodtune/kreport/internal/usage"
)

// orderedFactory fails if a chart is created while another is still open.
type orderedFactory struct {
	t       *testing.T
	open    int
	created int
}

func (f *orderedFactory) NewChart(data ChartData) (Chart, error) {
	if f.open != 0 {
		f.t.Errorf("chart created while %d chart(s) still open", f.open)
	}
	f.open++
	f.created++
	return &trackedChart{data: data, factory: f}, nil
}

type trackedChart struct {
	data    ChartData
	factory *orderedFactory
	closed  bool
}

func (c *trackedChart) Data() (ChartData, error) { return c.data, nil }

func (c *trackedChart) Close() error {
	if c.closed {
		return ErrChartClosed
	}
	c.closed = true
	c.factory.open--
	return nil
}

func sampleReport() report.UsageReport {
	ts := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	return report.UsageReport{
		ChildID:          "child-1",
		TotalUsedSeconds: 1650,
		LimitSeconds:     3600,
		LimitTier:        limits.TierOverride,
		RemainingSeconds: 1950,
		Rows:             []usage.Row{{Domain: "youtube.com", Seconds: 1500, Minutes: 25}},
		AttemptCount:     2,
		Attempts: []usage.Attempt{
			{Domain: "roblox.com", Timestamp: &ts},
			{Domain: "tiktok.com"},
		},
	}
}

func TestView_InitialState(t *testing.T) {
	v := NewView(&MemoryChartFactory{}, zerolog.Nop())
	s := v.Snapshot()

	if s.Status != StatusNoChild || s.LimitText != SelectChildText || s.UsedText != Placeholder || s.AttemptsText != Placeholder {
		t.Errorf("unexpected initial state: %+v", s)
	}
}

func TestView_RenderUsageReport(t *testing.T) {
	factory := &MemoryChartFactory{}
	v := NewView(factory, zerolog.Nop())

	v.RenderUsageReport(sampleReport())
	s := v.Snapshot()

	if s.Status != StatusReady {
		t.Errorf("Status = %q, want ready", s.Status)
	}
	if s.LimitText != "60 min max" || s.UsedText != "28 min" || s.AttemptsText != "2" {
		t.Errorf("figures = %q / %q / %q", s.LimitText, s.UsedText, s.AttemptsText)
	}
	if len(s.History) != 2 || s.History[0].Site != "roblox.com" || s.History[1].Time != "" {
		t.Errorf("History = %+v", s.History)
	}
	if s.Chart == nil {
		t.Fatal("chart missing")
	}
	if got := s.Chart.Slices; got[0].Value != 28 || got[1].Value != 32 {
		t.Errorf("chart slices = %+v, want used 28 remaining 32", got)
	}
	if factory.Open() != 1 {
		t.Errorf("open charts = %d, want 1", factory.Open())
	}
}

func TestView_EmptyReportNotes(t *testing.T) {
	v := NewView(&MemoryChartFactory{}, zerolog.Nop())
	v.RenderUsageReport(report.UsageReport{ChildID: "child-1", LimitSeconds: 7200})

	s := v.Snapshot()
	if s.HistoryNote != NoAttemptsText {
		t.Errorf("HistoryNote = %q, want %q", s.HistoryNote, NoAttemptsText)
	}
	if s.RowsNote != NoUsageText {
		t.Errorf("RowsNote = %q, want %q", s.RowsNote, NoUsageText)
	}
}

func TestView_ChartClosedBeforeReplacement(t *testing.T) {
	factory := &orderedFactory{t: t}
	v := NewView(factory, zerolog.Nop())

	for i := 0; i < 3; i++ {
		v.RenderUsageReport(sampleReport())
	}
	if factory.created != 3 || factory.open != 1 {
		t.Errorf("created = %d open = %d, want 3 and 1", factory.created, factory.open)
	}

	v.Close()
	if factory.open != 0 {
		t.Errorf("open = %d after Close, want 0", factory.open)
	}
}

func TestView_ErrorResetsFigures(t *testing.T) {
	factory := &MemoryChartFactory{}
	v := NewView(factory, zerolog.Nop())

	v.RenderUsageReport(sampleReport())
	v.RenderError(report.ErrorMessage)
	s := v.Snapshot()

	if s.Status != StatusError || s.Message != report.ErrorMessage {
		t.Errorf("state = %+v", s)
	}
	if s.LimitText != Placeholder || s.UsedText != Placeholder || s.AttemptsText != Placeholder {
		t.Errorf("figures not reset: %+v", s)
	}
	if s.Chart != nil || factory.Open() != 0 {
		t.Error("chart not released on error")
	}
}

func TestView_LoadingAndNoChild(t *testing.T) {
	v := NewView(&MemoryChartFactory{}, zerolog.Nop())

	v.RenderUsageReport(sampleReport())
	v.RenderLoading("child-1")
	if s := v.Snapshot(); s.Status != StatusLoading || s.Message != LoadingText || s.ChildID != "child-1" {
		t.Errorf("loading state = %+v", s)
	}

	// Switching children names the new child while it loads
	v.RenderLoading("child-2")
	if s := v.Snapshot(); s.Status != StatusLoading || s.ChildID != "child-2" {
		t.Errorf("loading state after switch = %+v", s)
	}

	v.RenderNoChildSelected()
	if s := v.Snapshot(); s.Status != StatusNoChild || s.LimitText != SelectChildText || s.Message != SelectFirstText {
		t.Errorf("no-child state = %+v", s)
	}
}

func TestMemoryChart_DoubleClose(t *testing.T) {
	f := &MemoryChartFactory{}
	c, _ := f.NewChart(UsageChartData(1, 2))
	if err := c.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := c.Close(); !errors.Is(err, ErrChartClosed) {
		t.Errorf("second Close() = %v, want ErrChartClosed", err)
	}
	if _, err := c.Data(); !errors.Is(err, ErrChartClosed) {
		t.Errorf("Data() after Close = %v, want ErrChartClosed", err)
	}
	if f.Open() != 0 || f.Created() != 1 {
		t.Errorf("Open = %d Created = %d", f.Open(), f.Created())
	}
}
