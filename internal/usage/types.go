// Package usage turns raw activity events into per-domain usage rows and
// debounced blocked-access attempts.
package usage

import (
	"math"
	"time"
)

// BlockedEvent is a block-worthy event with its site already normalized.
// Timestamp is nil when the recorded value could not be parsed.
type BlockedEvent struct {
	Domain    string
	Timestamp *time.Time
}

// Attempt is one clustered occurrence of blocked access to a domain.
type Attempt struct {
	Domain    string     `json:"domain"`
	Timestamp *time.Time `json:"timestamp"`
}

// Row is the usage of one normalized domain.
type Row struct {
	Domain  string `json:"domain"`
	Seconds int64  `json:"seconds"`
	Minutes int64  `json:"minutes"`
}

// Aggregate is the output of an Aggregator. TotalUsedSeconds covers every
// allowed event, including those whose rows were filtered out.
type Aggregate struct {
	Rows             []Row
	TotalUsedSeconds int64
}

// CeilMinutes converts seconds to minutes rounding up, so any non-zero usage
// reads as at least one minute.
func CeilMinutes(seconds int64) int64 {
	return int64(math.Ceil(float64(seconds) / 60))
}

// RoundMinutes converts seconds to minutes rounding to nearest.
func RoundMinutes(seconds int64) int64 {
	return int64(math.Round(float64(seconds) / 60))
}
