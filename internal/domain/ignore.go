package domain

import (
	"sort"
	"strings"
	"sync"

	"github.com/miekg/dns"
)

// IgnoreList flags CDN and cloud infrastructure domains that should not show
// up as sites in usage breakdowns. The suffix set can be swapped at runtime.
type IgnoreList struct {
	mu       sync.RWMutex
	suffixes []string
}

// NewIgnoreList creates an IgnoreList from suffixes.
func NewIgnoreList(suffixes []string) *IgnoreList {
	l := &IgnoreList{}
	l.Replace(suffixes)
	return l
}

// Replace swaps the configured suffix set.
func (l *IgnoreList) Replace(suffixes []string) {
	cleaned := make([]string, 0, len(suffixes))
	for _, s := range suffixes {
		s = strings.Trim(strings.ToLower(strings.TrimSpace(s)), ".")
		if s == "" {
			continue
		}
		cleaned = append(cleaned, dns.Fqdn(s))
	}

	l.mu.Lock()
	l.suffixes = cleaned
	l.mu.Unlock()
}

// Suffixes returns the configured suffixes in sorted order.
func (l *IgnoreList) Suffixes() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]string, len(l.suffixes))
	for i, s := range l.suffixes {
		out[i] = strings.TrimSuffix(s, ".")
	}
	sort.Strings(out)
	return out
}

// IsIgnored reports whether domain equals, or is a subdomain of, a configured suffix.
// Matching is on label boundaries: "notcloudflare.com" is not under "cloudflare.com".
func (l *IgnoreList) IsIgnored(domain string) bool {
	domain = strings.TrimSpace(domain)
	if domain == "" || domain == Unknown {
		return false
	}
	name := dns.Fqdn(strings.ToLower(domain))

	l.mu.RLock()
	defer l.mu.RUnlock()

	for _, suffix := range l.suffixes {
		if dns.IsSubDomain(suffix, name) {
			return true
		}
	}
	return false
}
