package bridge

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/iuriaranda/signalk-mqtt-bridge/internal/signalk"
)

// notification is the outbound payload for a delta. Context and path are
// carried by the topic.
type notification struct {
	Value     json.RawMessage `json:"value"`
	Source    string          `json:"$source,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
	IsMeta    bool            `json:"isMeta"`
}

// nullPayload is published for reads of absent paths.
var nullPayload = []byte("null")

// DeltaSubPath returns the topic sub-path for a delta. Deltas of the bus's
// own vessel are published under "vessels/self".
//
// Example: context "vessels.urn:mrn:imo:mmsi:42", path "navigation.position"
// -> "vessels/self/navigation/position"
func DeltaSubPath(d signalk.Delta, selfID string) string {
	if d.Context == selfContext(selfID) {
		return "vessels" + TopicDelimiter + SelfAlias + TopicDelimiter + PathToTopic(d.Path)
	}
	return PathToTopic(d.Context + PathDelimiter + d.Path)
}

// dispatchDelta publishes a delta if a lease covers it.
func (b *Bridge) dispatchDelta(d signalk.Delta) {
	if err := d.Validate(); err != nil {
		b.stats.deltasMalformed.Add(1)
		b.logDebug("malformed delta, ignoring", "error", err)
		return
	}

	subPath := DeltaSubPath(d, b.selfID)
	topic := b.topics.Notify(subPath)

	// Leases may be written relative to the bridge or as full topics.
	if !b.leases.IsCovered(subPath) && !b.leases.IsCovered(topic) {
		b.stats.deltasUncovered.Add(1)
		return
	}

	payload, err := json.Marshal(notification{
		Value:     d.Value,
		Source:    d.Source,
		Timestamp: d.Timestamp,
		IsMeta:    d.IsMeta,
	})
	if err != nil {
		b.stats.deltasMalformed.Add(1)
		b.logDebug("unencodable delta value, ignoring", "path", d.Path, "error", err)
		return
	}

	b.logDebug("publishing delta", "topic", topic)
	if b.publish(topic, payload, false) {
		b.stats.deltasPublished.Add(1)
	}
}

// dispatchCommand routes an inbound MQTT message.
func (b *Bridge) dispatchCommand(topic string, payload []byte) {
	cmd, err := ParseCommand(topic, payload)
	if err != nil {
		b.stats.commandsRejected.Add(1)
		b.logDebug("ignoring message", "topic", topic, "error", err)
		return
	}

	if cmd.Marker != b.topics.Marker || cmd.SystemID != b.topics.SystemID {
		b.stats.commandsRejected.Add(1)
		b.logDebug("ignoring message", "topic", topic, "error", ErrForeignSystem)
		return
	}

	b.logDebug("received command", "topic", topic, "payload", cmd.Payload)

	if cmd.IsKeepalive() {
		b.handleKeepalive(cmd.Payload)
		return
	}

	if !b.allowCommand() {
		b.logWarn("command rate exceeded, dropping", "topic", topic)
		return
	}

	switch cmd.Action {
	case ActionRead:
		b.handleRead(cmd.SubPath)
	case ActionWrite:
		b.handleWrite(cmd.SubPath, cmd.Payload)
	case ActionPut:
		b.handlePut(cmd.SubPath, cmd.Payload)
	}
}

// handleKeepalive renews the leases named in the payload.
func (b *Bridge) handleKeepalive(payload string) {
	patterns, err := ParseKeepalive(payload)
	if err != nil {
		b.stats.commandsRejected.Add(1)
		b.logDebug("ignoring keepalive", "error", err)
		return
	}

	now := b.now()
	for _, pattern := range patterns {
		b.leases.Upsert(pattern, b.ttl, now)
		b.logDebug("lease renewed", "pattern", pattern, "ttl", b.ttl)
	}
	b.stats.leases.Store(int64(b.leases.Len()))
	b.stats.keepalives.Add(1)
}

// handleRead reads a bus value and publishes it under the same sub-path.
// The read runs outside the dispatch loop; it does not touch the registry.
func (b *Bridge) handleRead(subPath string) {
	b.stats.reads.Add(1)
	path := TopicToPath(subPath)
	topic := b.topics.Notify(subPath)

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()

		ctx, cancel := context.WithTimeout(b.ctx, readTimeout)
		defer cancel()

		value, err := b.host.ReadPath(ctx, path)
		if err != nil {
			if !b.isStopping(err) {
				b.logWarn("read failed", "path", path, "error", err)
			}
			return
		}

		payload := []byte(value)
		if len(payload) == 0 {
			payload = nullPayload
		}
		b.publish(topic, payload, false)
	}()
}

// handleWrite injects a value update into the bus.
func (b *Bridge) handleWrite(subPath, payload string) {
	busContext, path, err := resolveTarget(subPath, b.selfID)
	if err != nil {
		b.stats.commandsRejected.Add(1)
		b.logDebug("ignoring write", "error", err)
		return
	}

	value := ParseWriteValue(payload)
	b.stats.writes.Add(1)
	if b.journal != nil {
		b.journal.RecordCommand(string(ActionWrite), busContext, path, value)
	}

	if err := b.host.WritePath(b.ctx, busContext, path, value, signalk.SourceMQTT); err != nil {
		b.logWarn("write failed", "context", busContext, "path", path, "error", err)
	}
}

// handlePut forwards a PUT. Its outcome is only logged.
func (b *Bridge) handlePut(subPath, payload string) {
	busContext, path, err := resolveTarget(subPath, b.selfID)
	if err != nil {
		b.stats.commandsRejected.Add(1)
		b.logDebug("ignoring put", "error", err)
		return
	}

	b.stats.puts.Add(1)
	if b.journal != nil {
		b.journal.RecordCommand(string(ActionPut), busContext, path, payload)
	}

	done := func(res signalk.PutResult) {
		if b.journal != nil {
			b.journal.RecordPutResult(busContext, path, res)
		}
		if res.Failed() {
			b.stats.putFailures.Add(1)
			b.logWarn("put failed",
				"context", busContext,
				"path", path,
				"status_code", res.StatusCode,
				"state", res.State,
				"message", res.Message)
			return
		}
		b.logDebug("put completed", "path", path, "state", res.State)
	}

	if err := b.host.PutPath(b.ctx, busContext, path, payload, done); err != nil {
		b.stats.putFailures.Add(1)
		if !errors.Is(err, context.Canceled) {
			b.logWarn("put not sent", "context", busContext, "path", path, "error", err)
		}
	}
}
