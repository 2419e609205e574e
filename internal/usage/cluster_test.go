package usage

import (
	"testing"
	"time"

	"github.com/goodtune/kreport/internal/domain"
	"github.com/goodtune/kreport/internal/storage"
)

var base = time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

func at(seconds int) *time.Time {
	t := base.Add(time.Duration(seconds) * time.Second)
	return &t
}

func TestClusterer_Cluster(t *testing.T) {
	tests := []struct {
		name   string
		events []BlockedEvent
		want   []Attempt
	}{
		{
			name: "debounce window",
			events: []BlockedEvent{
				{Domain: "roblox.com", Timestamp: at(0)},
				{Domain: "roblox.com", Timestamp: at(70)},
				{Domain: "roblox.com", Timestamp: at(80)},
			},
			want: []Attempt{
				{Domain: "roblox.com", Timestamp: at(0)},
				{Domain: "roblox.com", Timestamp: at(70)},
			},
		},
		{
			name: "exactly sixty seconds stays in cluster",
			events: []BlockedEvent{
				{Domain: "a.com", Timestamp: at(0)},
				{Domain: "a.com", Timestamp: at(60)},
			},
			want: []Attempt{{Domain: "a.com", Timestamp: at(0)}},
		},
		{
			name: "suppressed events extend the cluster",
			events: []BlockedEvent{
				{Domain: "a.com", Timestamp: at(0)},
				{Domain: "a.com", Timestamp: at(50)},
				{Domain: "a.com", Timestamp: at(100)},
			},
			want: []Attempt{{Domain: "a.com", Timestamp: at(0)}},
		},
		{
			name: "domains never merge",
			events: []BlockedEvent{
				{Domain: "a.com", Timestamp: at(0)},
				{Domain: "b.com", Timestamp: at(1)},
				{Domain: "a.com", Timestamp: at(2)},
			},
			want: []Attempt{
				{Domain: "a.com", Timestamp: at(0)},
				{Domain: "b.com", Timestamp: at(1)},
			},
		},
		{
			name: "unparseable timestamps are isolated and leave last seen alone",
			events: []BlockedEvent{
				{Domain: "a.com", Timestamp: nil},
				{Domain: "a.com", Timestamp: nil},
				{Domain: "a.com", Timestamp: at(0)},
				{Domain: "a.com", Timestamp: at(30)},
			},
			want: []Attempt{
				{Domain: "a.com"},
				{Domain: "a.com"},
				{Domain: "a.com", Timestamp: at(0)},
			},
		},
		{
			name:   "no events",
			events: nil,
			want:   nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Clusterer{Window: time.Minute}.Cluster(tt.events)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d attempts, want %d: %+v", len(got), len(tt.want), got)
			}
			if len(got) > len(tt.events) {
				t.Fatalf("more attempts than events")
			}
			for i := range got {
				if got[i].Domain != tt.want[i].Domain {
					t.Errorf("attempt %d domain = %q, want %q", i, got[i].Domain, tt.want[i].Domain)
				}
				if (got[i].Timestamp == nil) != (tt.want[i].Timestamp == nil) {
					t.Fatalf("attempt %d timestamp presence mismatch", i)
				}
				if got[i].Timestamp != nil && !got[i].Timestamp.Equal(*tt.want[i].Timestamp) {
					t.Errorf("attempt %d timestamp = %v, want %v", i, got[i].Timestamp, tt.want[i].Timestamp)
				}
			}
		})
	}
}

func TestClusterer_DefaultWindow(t *testing.T) {
	events := []BlockedEvent{
		{Domain: "a.com", Timestamp: at(0)},
		{Domain: "a.com", Timestamp: at(59)},
	}
	if got := (Clusterer{}).Cluster(events); len(got) != 1 {
		t.Errorf("got %d attempts with default window, want 1", len(got))
	}
}

func TestBlockedEvents(t *testing.T) {
	events := []storage.ActivityEvent{
		{SiteOrApp: "www.roblox.com", Action: storage.ActionBlocked, Timestamp: "2024-01-15T10:01:00Z"},
		{SiteOrApp: "youtube.com", Action: storage.ActionAllowed, Timestamp: "2024-01-15T10:00:00Z"},
		{SiteOrApp: "games.roblox.com", Action: storage.ActionTimeExceeded, Timestamp: "2024-01-15T10:00:30Z"},
		{SiteOrApp: "", Action: storage.ActionBlocked, Timestamp: "2024-01-15T10:00:00Z"},
		{SiteOrApp: "tiktok.com", Action: storage.ActionBlocked, Timestamp: "garbage"},
		{SiteOrApp: "x.com", Action: storage.ActionOther, Timestamp: "2024-01-15T10:00:00Z"},
	}

	got := BlockedEvents(events, domain.Normalize)

	wantDomains := []string{"tiktok.com", "roblox.com", "roblox.com"}
	if len(got) != len(wantDomains) {
		t.Fatalf("got %d events, want %d: %+v", len(got), len(wantDomains), got)
	}
	for i, d := range wantDomains {
		if got[i].Domain != d {
			t.Errorf("event %d domain = %q, want %q", i, got[i].Domain, d)
		}
	}
	if got[0].Timestamp != nil {
		t.Error("unparseable timestamp should be nil")
	}
	if !got[1].Timestamp.Before(*got[2].Timestamp) {
		t.Error("events not sorted by timestamp")
	}
}

func TestBlockedEvents_UnixSecondsAreIsolatedAttempts(t *testing.T) {
	events := []storage.ActivityEvent{
		{SiteOrApp: "roblox.com", Action: storage.ActionBlocked, Timestamp: "1705312800"},
		{SiteOrApp: "roblox.com", Action: storage.ActionBlocked, Timestamp: "1705312810"},
	}

	attempts := Clusterer{}.Cluster(BlockedEvents(events, domain.Normalize))
	if len(attempts) != 2 {
		t.Fatalf("got %d attempts, want 2 isolated attempts", len(attempts))
	}
	for i, a := range attempts {
		if a.Timestamp != nil {
			t.Errorf("attempt %d timestamp = %v, want nil", i, *a.Timestamp)
		}
	}
}
