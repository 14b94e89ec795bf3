package bridge

import (
	"sort"
	"time"
)

// Lease is a consumer's time-limited interest in a topic pattern.
type Lease struct {
	Pattern   string    `json:"pattern"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Registry holds the live leases keyed by exact pattern string.
//
// Registry is not safe for concurrent use. The bridge's dispatch loop is its
// only owner; other goroutines see it through Bridge.Leases.
type Registry struct {
	leases map[string]time.Time
}

// NewRegistry creates an empty lease registry.
func NewRegistry() *Registry {
	return &Registry{leases: make(map[string]time.Time)}
}

// Upsert creates or renews the lease for pattern, expiring at now+ttl.
// An existing expiry is never moved backwards.
func (r *Registry) Upsert(pattern string, ttl time.Duration, now time.Time) {
	expiresAt := now.Add(ttl)
	if current, ok := r.leases[pattern]; ok && current.After(expiresAt) {
		return
	}
	r.leases[pattern] = expiresAt
}

// Sweep removes every lease that expired before now and returns how many
// were removed. A lease expiring exactly at now survives.
func (r *Registry) Sweep(now time.Time) int {
	removed := 0
	for pattern, expiresAt := range r.leases {
		if expiresAt.Before(now) {
			delete(r.leases, pattern)
			removed++
		}
	}
	return removed
}

// IsCovered reports whether any live lease matches the topic.
func (r *Registry) IsCovered(topic string) bool {
	for pattern := range r.leases {
		if MatchTopic(pattern, topic) {
			return true
		}
	}
	return false
}

// Len returns the number of live leases.
func (r *Registry) Len() int {
	return len(r.leases)
}

// Snapshot returns a copy of the leases ordered by pattern.
func (r *Registry) Snapshot() []Lease {
	out := make([]Lease, 0, len(r.leases))
	for pattern, expiresAt := range r.leases {
		out = append(out, Lease{Pattern: pattern, ExpiresAt: expiresAt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Pattern < out[j].Pattern })
	return out
}
