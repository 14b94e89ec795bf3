package signalk

import (
	"encoding/json"
	"fmt"
)

// SourceMQTT is the $source label attached to values written from MQTT.
const SourceMQTT = "mqtt"

// Delta is one flattened value update from the Signal K stream.
//
// Value holds the raw JSON of the update and is empty when the field was
// absent. A present JSON null is kept as "null".
type Delta struct {
	Context   string          `json:"context"`
	Path      string          `json:"path"`
	Value     json.RawMessage `json:"value"`
	Source    string          `json:"$source,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
	IsMeta    bool            `json:"isMeta"`
}

// Validate checks that context, path and value are present.
func (d Delta) Validate() error {
	if d.Context == "" {
		return fmt.Errorf("%w: missing context", ErrInvalidDelta)
	}
	if d.Path == "" {
		return fmt.Errorf("%w: missing path", ErrInvalidDelta)
	}
	if len(d.Value) == 0 {
		return fmt.Errorf("%w: missing value for %s", ErrInvalidDelta, d.Path)
	}
	return nil
}

// PutResult is the final outcome of a PUT request.
type PutResult struct {
	RequestID  string `json:"requestId"`
	State      string `json:"state"`
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message,omitempty"`
}

// Failed reports whether the bus rejected the request.
func (r PutResult) Failed() bool {
	return r.StatusCode > 299
}

// Request states reported by Signal K.
const (
	StatePending   = "PENDING"
	StateCompleted = "COMPLETED"
	StateFailed    = "FAILED"
)

// deltaMessage is the Signal K wire delta format.
//
//	{"context": "vessels.urn:mrn:imo:mmsi:230099999",
//	 "updates": [{"$source": "n2k.115", "timestamp": "...",
//	              "values": [{"path": "navigation.speedOverGround", "value": 3.2}],
//	              "meta": [{"path": "...", "value": {...}}]}]}
type deltaMessage struct {
	Context string        `json:"context,omitempty"`
	Updates []deltaUpdate `json:"updates,omitempty"`
}

type deltaUpdate struct {
	Source    *deltaSource   `json:"source,omitempty"`
	SourceRef string         `json:"$source,omitempty"`
	Timestamp string         `json:"timestamp,omitempty"`
	Values    []pathValueRaw `json:"values,omitempty"`
	Meta      []pathValueRaw `json:"meta,omitempty"`
}

type deltaSource struct {
	Label string `json:"label,omitempty"`
	Type  string `json:"type,omitempty"`
	Src   string `json:"src,omitempty"`
}

type pathValueRaw struct {
	Path  string          `json:"path"`
	Value json.RawMessage `json:"value"`
}

// sourceRef returns the $source of an update, falling back to the legacy
// source object.
func (u deltaUpdate) sourceRef() string {
	if u.SourceRef != "" {
		return u.SourceRef
	}
	if u.Source == nil {
		return ""
	}
	if u.Source.Src != "" {
		return u.Source.Label + "." + u.Source.Src
	}
	return u.Source.Label
}

// Flatten expands a wire delta into one Delta per value and meta entry.
// The message's context is used, or defaultContext when it has none.
func (m deltaMessage) Flatten(defaultContext string) []Delta {
	ctx := m.Context
	if ctx == "" {
		ctx = defaultContext
	}

	var out []Delta
	for _, u := range m.Updates {
		src := u.sourceRef()
		for _, v := range u.Values {
			out = append(out, Delta{
				Context: ctx, Path: v.Path, Value: v.Value,
				Source: src, Timestamp: u.Timestamp,
			})
		}
		for _, v := range u.Meta {
			out = append(out, Delta{
				Context: ctx, Path: v.Path, Value: v.Value,
				Source: src, Timestamp: u.Timestamp, IsMeta: true,
			})
		}
	}
	return out
}
