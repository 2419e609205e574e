package report

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/goodtune/kreport/internal/metrics"
)

// ErrorMessage is shown when a generation fails for any reason.
const ErrorMessage = "Error loading data"

// Presenter receives the outcome of report generations.
// Calls are serialized; implementations must not call back into the Controller.
type Presenter interface {
	RenderUsageReport(r UsageReport)
	RenderNoChildSelected()
	RenderLoading(childID string)
	RenderError(message string)
}

// ReportBuilder builds a report for a child.
type ReportBuilder interface {
	Build(ctx context.Context, childID string) (UsageReport, error)
}

// Controller runs report generations for the selected child. Each Trigger
// starts a new generation and cancels the previous one; only the newest
// generation reaches the Presenter.
type Controller struct {
	builder   ReportBuilder
	presenter Presenter
	timeout   time.Duration
	logger    zerolog.Logger

	mu         sync.Mutex
	generation uint64
	childID    string
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

// NewController creates a controller. A non-positive timeout leaves
// generations unbounded.
func NewController(builder ReportBuilder, presenter Presenter, timeout time.Duration, logger zerolog.Logger) *Controller {
	return &Controller{
		builder:   builder,
		presenter: presenter,
		timeout:   timeout,
		logger:    logger.With().Str("component", "report-controller").Logger(),
	}
}

// Trigger starts a generation for childID, superseding any in flight, and
// returns its generation number. An empty childID renders the no-child state.
func (c *Controller) Trigger(childID string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.triggerLocked(childID)
}

// Refresh re-runs the generation for the current child.
func (c *Controller) Refresh() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.triggerLocked(c.childID)
}

// RefreshIf re-runs the generation only when childID is still the current
// child. It reports whether a generation was started.
func (c *Controller) RefreshIf(childID string) (uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if childID == "" || c.childID != childID {
		return c.generation, false
	}
	return c.triggerLocked(childID), true
}

// triggerLocked starts a generation. c.mu must be held.
func (c *Controller) triggerLocked(childID string) uint64 {
	c.generation++
	gen := c.generation
	c.childID = childID

	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}

	if childID == "" {
		c.logger.Debug().Uint64("generation", gen).Msg("No child selected")
		c.presenter.RenderNoChildSelected()
		return gen
	}

	c.presenter.RenderLoading(childID)

	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if c.timeout > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), c.timeout)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}
	c.cancel = cancel

	c.logger.Debug().
		Uint64("generation", gen).
		Str("child_id", childID).
		Msg("Report generation started")

	c.wg.Add(1)
	go c.run(ctx, cancel, gen, childID)

	return gen
}

// Current returns the child of the newest generation.
func (c *Controller) Current() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.childID
}

// Wait blocks until every started generation has finished.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// Close cancels the in-flight generation and waits for it to exit.
func (c *Controller) Close() {
	c.mu.Lock()
	c.generation++
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.mu.Unlock()

	c.wg.Wait()
}

func (c *Controller) run(ctx context.Context, cancel context.CancelFunc, gen uint64, childID string) {
	defer c.wg.Done()
	defer cancel()
	defer func() {
		if p := recover(); p != nil {
			c.logger.Error().
				Str("child_id", childID).
				Uint64("generation", gen).
				Str("panic", fmt.Sprint(p)).
				Msg("Report generation panicked")
			c.deliver(gen, childID, func() { c.presenter.RenderError(ErrorMessage) })
		}
	}()

	r, err := c.builder.Build(ctx, childID)
	if err != nil {
		c.deliver(gen, childID, func() {
			ev := c.logger.Error()
			if errors.Is(err, context.DeadlineExceeded) {
				ev = c.logger.Warn()
			}
			ev.Err(err).Str("child_id", childID).Uint64("generation", gen).Msg("Report generation failed")
			c.presenter.RenderError(ErrorMessage)
		})
		return
	}

	c.deliver(gen, childID, func() { c.presenter.RenderUsageReport(r) })
}

// deliver runs render only if gen is still the newest generation.
func (c *Controller) deliver(gen uint64, childID string, render func()) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.generation {
		metrics.GenerationsSuperseded.Inc()
		c.logger.Debug().
			Str("child_id", childID).
			Uint64("generation", gen).
			Uint64("current", c.generation).
			Msg("Discarding superseded report generation")
		return false
	}

	render()
	return true
}
