package bridge

import "sync/atomic"

// Stats is a point-in-time copy of the bridge counters.
type Stats struct {
	DeltasReceived    uint64 `json:"deltas_received"`
	DeltasPublished   uint64 `json:"deltas_published"`
	DeltasUncovered   uint64 `json:"deltas_uncovered"`
	DeltasMalformed   uint64 `json:"deltas_malformed"`
	DeltasDropped     uint64 `json:"deltas_dropped"`
	Keepalives        uint64 `json:"keepalives"`
	Reads             uint64 `json:"reads"`
	Writes            uint64 `json:"writes"`
	Puts              uint64 `json:"puts"`
	PutFailures       uint64 `json:"put_failures"`
	CommandsRejected  uint64 `json:"commands_rejected"`
	CommandsThrottled uint64 `json:"commands_throttled"`
	PublishDropped    uint64 `json:"publish_dropped"`
	Leases            int    `json:"leases"`
}

// Metrics returns the stats as named values for a time-series sink.
func (s Stats) Metrics() map[string]float64 {
	return map[string]float64{
		"deltas_received":    float64(s.DeltasReceived),
		"deltas_published":   float64(s.DeltasPublished),
		"deltas_uncovered":   float64(s.DeltasUncovered),
		"deltas_malformed":   float64(s.DeltasMalformed),
		"deltas_dropped":     float64(s.DeltasDropped),
		"keepalives":         float64(s.Keepalives),
		"reads":              float64(s.Reads),
		"writes":             float64(s.Writes),
		"puts":               float64(s.Puts),
		"put_failures":       float64(s.PutFailures),
		"commands_rejected":  float64(s.CommandsRejected),
		"commands_throttled": float64(s.CommandsThrottled),
		"publish_dropped":    float64(s.PublishDropped),
		"leases":             float64(s.Leases),
	}
}

type counters struct {
	deltasReceived    atomic.Uint64
	deltasPublished   atomic.Uint64
	deltasUncovered   atomic.Uint64
	deltasMalformed   atomic.Uint64
	deltasDropped     atomic.Uint64
	keepalives        atomic.Uint64
	reads             atomic.Uint64
	writes            atomic.Uint64
	puts              atomic.Uint64
	putFailures       atomic.Uint64
	commandsRejected  atomic.Uint64
	commandsThrottled atomic.Uint64
	publishDropped    atomic.Uint64

	// leases mirrors the registry size for readers outside the loop.
	leases atomic.Int64
}

// Stats returns the current counters.
func (b *Bridge) Stats() Stats {
	c := &b.stats
	return Stats{
		DeltasReceived:    c.deltasReceived.Load(),
		DeltasPublished:   c.deltasPublished.Load(),
		DeltasUncovered:   c.deltasUncovered.Load(),
		DeltasMalformed:   c.deltasMalformed.Load(),
		DeltasDropped:     c.deltasDropped.Load(),
		Keepalives:        c.keepalives.Load(),
		Reads:             c.reads.Load(),
		Writes:            c.writes.Load(),
		Puts:              c.puts.Load(),
		PutFailures:       c.putFailures.Load(),
		CommandsRejected:  c.commandsRejected.Load(),
		CommandsThrottled: c.commandsThrottled.Load(),
		PublishDropped:    c.publishDropped.Load(),
		Leases:            int(c.leases.Load()),
	}
}
