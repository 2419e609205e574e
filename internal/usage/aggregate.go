package usage

import (
	"sort"

	"github.com/goodtune/kreport/internal/storage"
)

// DefaultMinSeconds is the smallest bucket that still gets a row.
const DefaultMinSeconds int64 = 5

// Aggregator builds the per-domain usage breakdown from allowed events.
type Aggregator struct {
	Normalize  func(string) string
	IsIgnored  func(string) bool
	MinSeconds int64
}

// Aggregate sums allowed durations per raw site key, merges keys that
// normalize to the same domain and returns the filtered, sorted rows along
// with the unfiltered total.
func (a Aggregator) Aggregate(events []storage.ActivityEvent) Aggregate {
	// Sum per raw key, remembering first-seen order
	var (
		rawKeys []string
		rawSums = make(map[string]int64)
		total   int64
	)
	for _, e := range events {
		if e.Action != storage.ActionAllowed {
			continue
		}
		seconds := DurationSeconds(e)
		if _, ok := rawSums[e.SiteOrApp]; !ok {
			rawKeys = append(rawKeys, e.SiteOrApp)
		}
		rawSums[e.SiteOrApp] += seconds
		total += seconds
	}

	// Merge raw keys into normalized buckets
	var (
		domains []string
		buckets = make(map[string]int64)
	)
	for _, key := range rawKeys {
		d := a.Normalize(key)
		if _, ok := buckets[d]; !ok {
			domains = append(domains, d)
		}
		buckets[d] += rawSums[key]
	}

	minSeconds := a.MinSeconds
	if minSeconds <= 0 {
		minSeconds = DefaultMinSeconds
	}

	rows := make([]Row, 0, len(domains))
	for _, d := range domains {
		seconds := buckets[d]
		if seconds < minSeconds {
			continue
		}
		if a.IsIgnored != nil && a.IsIgnored(d) {
			continue
		}
		rows = append(rows, Row{Domain: d, Seconds: seconds, Minutes: CeilMinutes(seconds)})
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Seconds > rows[j].Seconds
	})

	return Aggregate{Rows: rows, TotalUsedSeconds: total}
}
