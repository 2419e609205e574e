package dashboard

import (
	"errors"
	"sync/atomic"
)

// ErrChartClosed is returned when a closed chart is used.
var ErrChartClosed = errors.New("dashboard: chart closed")

// Slice is one labelled segment of a doughnut chart.
type Slice struct {
	Label string `json:"label"`
	Value int64  `json:"value"`
}

// ChartData is the Used/Remaining breakdown shown for the active child.
type ChartData struct {
	Slices []Slice `json:"slices"`
}

// UsageChartData builds doughnut data from used and remaining minutes.
func UsageChartData(usedMinutes, remainingMinutes int64) ChartData {
	return ChartData{Slices: []Slice{
		{Label: "Used (min)", Value: usedMinutes},
		{Label: "Remaining (min)", Value: remainingMinutes},
	}}
}

// Chart is a replaceable rendered chart. It must be closed before another
// chart is created for the same view.
type Chart interface {
	Data() (ChartData, error)
	Close() error
}

// ChartFactory creates charts.
type ChartFactory interface {
	NewChart(data ChartData) (Chart, error)
}

// MemoryChartFactory creates charts that hold their data in memory. It keeps
// count of open charts so leaks are observable.
type MemoryChartFactory struct {
	open    atomic.Int64
	created atomic.Int64
}

// NewChart implements ChartFactory.
func (f *MemoryChartFactory) NewChart(data ChartData) (Chart, error) {
	f.open.Add(1)
	f.created.Add(1)
	return &memoryChart{data: data, factory: f}, nil
}

// Open returns the number of charts not yet closed.
func (f *MemoryChartFactory) Open() int64 {
	return f.open.Load()
}

// Created returns the number of charts ever created.
func (f *MemoryChartFactory) Created() int64 {
	return f.created.Load()
}

type memoryChart struct {
	data    ChartData
	factory *MemoryChartFactory
	closed  atomic.Bool
}

func (c *memoryChart) Data() (ChartData, error) {
	if c.closed.Load() {
		return ChartData{}, ErrChartClosed
	}
	return c.data, nil
}

func (c *memoryChart) Close() error {
	if c.closed.Swap(true) {
		return ErrChartClosed
	}
	c.factory.open.Add(-1)
	return nil
}
