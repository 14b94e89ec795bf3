// Package bridge implements the Signal K <> MQTT bridge engine.
//
// The engine sits between a Signal K server and an MQTT broker:
//
//	┌─────────────────┐  deltas   ┌─────────────────┐   N/...   ┌──────────┐
//	│  Signal K bus   │──────────►│  Bridge         │──────────►│  MQTT    │
//	│                 │◄──────────│  (this pkg)     │◄──────────│  broker  │
//	└─────────────────┘ read/write└─────────────────┘  R|W|P/.. └──────────┘
//	                     /put
//
// # Topics
//
// Every topic starts with {action}/{marker}/{systemId}. Inbound actions are
// R (read, or keepalive), W (write) and P (put); outbound notifications use
// N. Signal K paths map to topic levels by replacing "." with "/":
//
//	N/signalk/230099999/vessels/self/navigation/position
//
// # Leases
//
// Deltas are only published while a consumer holds a lease on a matching
// pattern. Leases are created and renewed by publishing to
// R/{marker}/{systemId}/keepalive, either with an empty payload (lease "#")
// or with a JSON array of patterns. A lease lapses after the keepalive TTL.
//
// # Concurrency
//
// A single dispatch goroutine owns the lease registry and handles inbound
// messages, deltas, connection events and the expiry ticker one at a time.
// Reads and put outcomes complete off the loop and never touch the registry.
package bridge
