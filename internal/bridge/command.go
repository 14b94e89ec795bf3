package bridge

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// commandTopicParts is the number of levels before the sub-path.
const commandTopicParts = 4

// Command is an inbound MQTT message addressed to a bridge.
type Command struct {
	Action   Action
	Marker   string
	SystemID string
	SubPath  string
	Payload  string
}

// ParseCommand splits an inbound topic into a Command.
// The payload is trimmed of surrounding whitespace.
//
// Example: "W/signalk/42/self/navigation/speedOverGround" ->
// Command{Action: "W", Marker: "signalk", SystemID: "42",
// SubPath: "self/navigation/speedOverGround"}
func ParseCommand(topic string, payload []byte) (Command, error) {
	parts := strings.SplitN(topic, TopicDelimiter, commandTopicParts)
	if len(parts) < commandTopicParts || parts[3] == "" {
		return Command{}, fmt.Errorf("%w: %q", ErrMalformedTopic, topic)
	}

	action := Action(parts[0])
	switch action {
	case ActionRead, ActionWrite, ActionPut:
	default:
		return Command{}, fmt.Errorf("%w: %q", ErrUnknownAction, parts[0])
	}

	return Command{
		Action:   action,
		Marker:   parts[1],
		SystemID: parts[2],
		SubPath:  parts[3],
		Payload:  strings.TrimSpace(string(payload)),
	}, nil
}

// IsKeepalive reports whether the command renews leases.
func (c Command) IsKeepalive() bool {
	return c.Action == ActionRead && c.SubPath == KeepaliveSubPath
}

// ParseKeepalive returns the lease patterns requested by a keepalive payload.
// An empty payload requests every topic.
func ParseKeepalive(payload string) ([]string, error) {
	if payload == "" {
		return []string{MultiLevelWildcard}, nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedKeepalive, err)
	}

	patterns := make([]string, 0, len(raw))
	for _, item := range raw {
		var pattern string
		if err := json.Unmarshal(item, &pattern); err != nil || pattern == "" {
			// Non-string entries are skipped; the rest still count.
			continue
		}
		patterns = append(patterns, pattern)
	}
	return patterns, nil
}

// ParseWriteValue converts a write payload to a number when it parses as a
// finite float, and keeps it as a string otherwise.
func ParseWriteValue(payload string) any {
	if payload == "" {
		return payload
	}
	f, err := strconv.ParseFloat(payload, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return payload
	}
	return f
}

// resolveTarget splits a write or put sub-path into a bus context and path.
//
// Accepted forms, where selfContext is "vessels.<selfId>":
//
//	self/a/b            -> selfContext, "a.b"
//	vessels/self/a/b    -> "vessels.<selfId>", "a.b"
//	vessels/urn:x/a/b   -> "vessels.urn:x", "a.b"
func resolveTarget(subPath, selfID string) (busContext, path string, err error) {
	segs := strings.Split(subPath, TopicDelimiter)

	if segs[0] == SelfAlias {
		path = strings.Join(segs[1:], PathDelimiter)
		if path == "" {
			return "", "", fmt.Errorf("%w: %q", ErrMalformedTarget, subPath)
		}
		return selfContext(selfID), path, nil
	}

	if len(segs) < 3 {
		return "", "", fmt.Errorf("%w: %q needs a two part context", ErrMalformedTarget, subPath)
	}

	ctxID := segs[1]
	if ctxID == SelfAlias {
		ctxID = selfID
	}
	path = strings.Join(segs[2:], PathDelimiter)
	if segs[0] == "" || ctxID == "" || path == "" {
		return "", "", fmt.Errorf("%w: %q", ErrMalformedTarget, subPath)
	}
	return segs[0] + PathDelimiter + ctxID, path, nil
}

// selfContext returns the bus context of the vessel the bus runs on.
func selfContext(selfID string) string {
	return "vessels" + PathDelimiter + selfID
}
