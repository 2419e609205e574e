// Package domain reduces raw hostnames and URLs to registrable domains and
// decides which of them are infrastructure noise.
package domain

import (
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/goodtune/kreport/internal/metrics"
)

// Unknown is returned for inputs that carry no usable host.
const Unknown = "Unknown"

// countryCodes are the last labels that always keep a third label,
// whatever the length of the second-to-last one.
var countryCodes = map[string]bool{
	"in": true,
	"uk": true,
	"us": true,
	"au": true,
	"nz": true,
	"za": true,
}

// Normalize returns the registrable domain for raw.
//
//	Normalize("http://www.Google.co.in/abc?x=1") == "google.co.in"
//	Normalize("sub.example.com") == "example.com"
func Normalize(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return Unknown
	}

	s = strings.TrimPrefix(s, "https://")
	s = strings.TrimPrefix(s, "http://")
	s = strings.TrimPrefix(s, "www.")
	if i := strings.IndexAny(s, "/?"); i >= 0 {
		s = s[:i]
	}
	if s == "" {
		return Unknown
	}

	labels := strings.Split(s, ".")
	n := len(labels)
	if n <= 2 {
		return s
	}

	if len(labels[n-2]) <= 3 || countryCodes[labels[n-1]] {
		return strings.Join(labels[n-3:], ".")
	}
	return strings.Join(labels[n-2:], ".")
}

// Normalizer memoizes Normalize. It is safe for concurrent use.
type Normalizer struct {
	cache *lru.Cache[string, string]
}

// NewNormalizer creates a Normalizer remembering up to size distinct inputs.
func NewNormalizer(size int) (*Normalizer, error) {
	cache, err := lru.New[string, string](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create normalizer cache: %w", err)
	}
	return &Normalizer{cache: cache}, nil
}

// Normalize returns the registrable domain for raw.
func (n *Normalizer) Normalize(raw string) string {
	if d, ok := n.cache.Get(raw); ok {
		metrics.NormalizerCacheHits.Inc()
		return d
	}
	metrics.NormalizerCacheMisses.Inc()

	d := Normalize(raw)
	n.cache.Add(raw, d)
	return d
}

// Len returns the number of memoized inputs.
func (n *Normalizer) Len() int {
	return n.cache.Len()
}
