package signalk

import (
	"sync"
	"time"
)

// pruneThreshold is the key count above which stale keys are dropped.
const pruneThreshold = 4096

// Debouncer passes the first update of a context and path and drops repeats
// until the window since the last passed update has elapsed.
type Debouncer struct {
	window time.Duration
	now    func() time.Time

	mu   sync.Mutex
	last map[string]time.Time
}

// NewDebouncer creates a debouncer. A non-positive window passes everything.
func NewDebouncer(window time.Duration) *Debouncer {
	return &Debouncer{
		window: window,
		now:    time.Now,
		last:   make(map[string]time.Time),
	}
}

// Allow reports whether the delta should be forwarded.
func (d *Debouncer) Allow(delta Delta) bool {
	if d.window <= 0 {
		return true
	}

	key := delta.Context + "|" + delta.Path
	if delta.IsMeta {
		key += "|meta"
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if last, ok := d.last[key]; ok && now.Sub(last) < d.window {
		return false
	}
	d.last[key] = now

	if len(d.last) > pruneThreshold {
		for k, t := range d.last {
			if now.Sub(t) >= d.window {
				delete(d.last, k)
			}
		}
	}
	return true
}
