package usage

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// ResetTime is a time of day at which the daily report window rolls over.
type ResetTime struct {
	Hour   int
	Minute int
}

// ParseResetTime parses an HH:MM time of day.
func ParseResetTime(s string) (ResetTime, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return ResetTime{}, fmt.Errorf("invalid reset time %q: %w", s, err)
	}
	return ResetTime{Hour: t.Hour(), Minute: t.Minute()}, nil
}

// String returns the reset time in HH:MM form.
func (r ResetTime) String() string {
	return fmt.Sprintf("%02d:%02d", r.Hour, r.Minute)
}

// WindowStart returns the start of the reporting day containing now: today's
// reset time, or yesterday's when now is before it.
func (r ResetTime) WindowStart(now time.Time) time.Time {
	todayReset := time.Date(now.Year(), now.Month(), now.Day(), r.Hour, r.Minute, 0, 0, now.Location())
	if now.Before(todayReset) {
		return todayReset.AddDate(0, 0, -1)
	}
	return todayReset
}

// NextReset returns the first reset strictly after now.
func (r ResetTime) NextReset(now time.Time) time.Time {
	return r.WindowStart(now).AddDate(0, 0, 1)
}

// ResetScheduler calls a function each time the daily window rolls over
type ResetScheduler struct {
	resetTime ResetTime
	clock     Clock
	onReset   func()
	logger    zerolog.Logger
	stopChan  chan struct{}
	doneChan  chan struct{}
}

// NewResetScheduler creates a new reset scheduler
func NewResetScheduler(resetTime string, clock Clock, onReset func(), logger zerolog.Logger) (*ResetScheduler, error) {
	rt, err := ParseResetTime(resetTime)
	if err != nil {
		return nil, err
	}
	if clock == nil {
		clock = RealClock{}
	}

	return &ResetScheduler{
		resetTime: rt,
		clock:     clock,
		onReset:   onReset,
		logger:    logger.With().Str("component", "reset-scheduler").Logger(),
		stopChan:  make(chan struct{}),
		doneChan:  make(chan struct{}),
	}, nil
}

// Start begins the reset scheduler
func (rs *ResetScheduler) Start() {
	go rs.run()
	rs.logger.Info().
		Str("reset_time", rs.resetTime.String()).
		Msg("Daily report reset scheduler started")
}

// Stop stops the reset scheduler and waits for it to exit
func (rs *ResetScheduler) Stop() {
	close(rs.stopChan)
	<-rs.doneChan
	rs.logger.Info().Msg("Daily report reset scheduler stopped")
}

// run is the main scheduler loop
func (rs *ResetScheduler) run() {
	defer close(rs.doneChan)

	for {
		now := rs.clock.Now()
		nextReset := rs.resetTime.NextReset(now)
		waitDuration := nextReset.Sub(now)

		rs.logger.Info().
			Time("next_reset", nextReset).
			Dur("wait_duration", waitDuration).
			Msg("Scheduled next daily reset")

		timer := time.NewTimer(waitDuration)
		select {
		case <-timer.C:
			rs.logger.Info().Msg("Daily report window rolled over")
			if rs.onReset != nil {
				rs.onReset()
			}
		case <-rs.stopChan:
			timer.Stop()
			return
		}
	}
}
