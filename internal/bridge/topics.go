package bridge

import "strings"

// Delimiters and reserved tokens of the two namespaces.
const (
	// PathDelimiter separates Signal K path segments.
	PathDelimiter = "."

	// TopicDelimiter separates MQTT topic levels.
	TopicDelimiter = "/"

	// SingleLevelWildcard matches exactly one topic level.
	SingleLevelWildcard = "+"

	// MultiLevelWildcard matches all remaining topic levels.
	MultiLevelWildcard = "#"

	// SelfAlias stands in for the bus's own identity in topics.
	SelfAlias = "self"

	// KeepaliveSubPath is the reserved read sub-path that renews leases.
	KeepaliveSubPath = "keepalive"

	// SerialSubPath carries the system id as a retained value.
	SerialSubPath = "system/Serial"
)

// Action is the first topic level of a bridge message.
type Action string

const (
	// ActionRead requests a value or renews leases (keepalive).
	ActionRead Action = "R"

	// ActionWrite injects a value update into the bus.
	ActionWrite Action = "W"

	// ActionPut forwards a PUT request to the bus.
	ActionPut Action = "P"

	// ActionNotify marks outbound notifications (deltas and read replies).
	ActionNotify Action = "N"
)

// PathToTopic translates a Signal K path into an MQTT topic.
//
// The translation is a literal delimiter substitution. A path segment that
// already contains "/" does not survive the round trip.
//
// Example: "navigation.position" -> "navigation/position"
func PathToTopic(path string) string {
	return strings.ReplaceAll(path, PathDelimiter, TopicDelimiter)
}

// TopicToPath translates an MQTT topic into a Signal K path.
//
// Example: "navigation/position" -> "navigation.position"
func TopicToPath(topic string) string {
	return strings.ReplaceAll(topic, TopicDelimiter, PathDelimiter)
}

// Topics builds the bridge's MQTT topics for one bus marker and system id.
//
//	topics := bridge.Topics{Marker: "signalk", SystemID: "230099999"}
//	topics.Notify("vessels/self/navigation/position")
//	// Returns: "N/signalk/230099999/vessels/self/navigation/position"
type Topics struct {
	Marker   string
	SystemID string
}

// prefix returns "{action}/{marker}/{systemId}".
func (t Topics) prefix(action Action) string {
	return string(action) + TopicDelimiter + t.Marker + TopicDelimiter + t.SystemID
}

// Notify returns the outbound topic for a sub-path.
func (t Topics) Notify(subPath string) string {
	return t.prefix(ActionNotify) + TopicDelimiter + subPath
}

// Inbound returns the subscription filter for an inbound action.
//
// Example: Inbound(ActionRead) -> "R/signalk/230099999/#"
func (t Topics) Inbound(action Action) string {
	return t.prefix(action) + TopicDelimiter + MultiLevelWildcard
}

// InboundFilters returns the filters the bridge subscribes to on connect.
func (t Topics) InboundFilters() []string {
	return []string{
		t.Inbound(ActionRead),
		t.Inbound(ActionWrite),
		t.Inbound(ActionPut),
	}
}

// Keepalive returns the retained keepalive capability topic.
func (t Topics) Keepalive() string {
	return t.Notify(KeepaliveSubPath)
}

// Serial returns the retained serial number topic.
func (t Topics) Serial() string {
	return t.Notify(SerialSubPath)
}

// DeriveSystemID turns a Signal K self identity into the short id used in
// topics: the last ":" segment, then its last "-" segment.
//
//	"urn:mrn:imo:mmsi:230099999" -> "230099999"
//	"urn:mrn:signalk:uuid:c0d79334-4e25-4245-8892-54e8ccc8021d" -> "54e8ccc8021d"
func DeriveSystemID(selfID string) string {
	id := selfID
	if i := strings.LastIndex(id, ":"); i >= 0 {
		id = id[i+1:]
	}
	if i := strings.LastIndex(id, "-"); i >= 0 {
		id = id[i+1:]
	}
	return id
}
