package usage

import (
	"sort"
	"strings"
	"time"

	"github.com/goodtune/kreport/internal/storage"
)

// DefaultDebounceWindow is the gap above which a repeated blocked event opens
// a new attempt.
const DefaultDebounceWindow = 60 * time.Second

// Clusterer collapses repeated blocked events per domain into attempts.
type Clusterer struct {
	Window time.Duration
}

// Cluster returns one Attempt per opened cluster, in the order of the events
// that opened them. Events must be in ascending timestamp order.
//
// An event opens an attempt when its domain has not been seen, when it is more
// than Window after the domain's last parsed timestamp, or when its own
// timestamp is unparseable. Unparseable events never update the last-seen time.
func (c Clusterer) Cluster(events []BlockedEvent) []Attempt {
	window := c.Window
	if window <= 0 {
		window = DefaultDebounceWindow
	}

	lastSeen := make(map[string]time.Time)
	var attempts []Attempt

	for _, e := range events {
		if e.Timestamp == nil {
			attempts = append(attempts, Attempt{Domain: e.Domain})
			continue
		}

		ts := *e.Timestamp
		prev, seen := lastSeen[e.Domain]
		if !seen || ts.Sub(prev) > window {
			attempts = append(attempts, Attempt{Domain: e.Domain, Timestamp: e.Timestamp})
		}
		lastSeen[e.Domain] = ts
	}

	return attempts
}

// BlockedEvents selects block-worthy events with a site, normalizes their
// domains and orders them by timestamp. Unparseable timestamps sort first and
// events with equal timestamps keep their input order.
func BlockedEvents(events []storage.ActivityEvent, normalize func(string) string) []BlockedEvent {
	out := make([]BlockedEvent, 0, len(events))
	for _, e := range events {
		if !e.Action.IsBlockWorthy() || strings.TrimSpace(e.SiteOrApp) == "" {
			continue
		}
		out = append(out, BlockedEvent{
			Domain:    normalize(e.SiteOrApp),
			Timestamp: Timestamp(e),
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return instant(out[i].Timestamp).Before(instant(out[j].Timestamp))
	})
	return out
}

func instant(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
