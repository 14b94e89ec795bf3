package bridge

import "strings"

// MatchTopic reports whether a lease pattern covers a concrete topic.
//
// Both strings are split into levels and walked in lockstep up to the longer
// of the two. A level missing on either side is a mismatch. Otherwise a "+"
// on either side matches the level, a "#" on either side matches everything
// that follows, and any other level must be equal.
//
// The comparison is structurally symmetric; the pattern-first argument order
// is only a naming convention. "a/#" does not match "a": the topic runs out
// at the level holding the wildcard.
func MatchTopic(pattern, topic string) bool {
	p := strings.Split(pattern, TopicDelimiter)
	t := strings.Split(topic, TopicDelimiter)

	for i := 0; i < max(len(p), len(t)); i++ {
		if i >= len(p) || i >= len(t) {
			return false
		}
		if p[i] == SingleLevelWildcard || t[i] == SingleLevelWildcard {
			continue
		}
		if p[i] == MultiLevelWildcard || t[i] == MultiLevelWildcard {
			return true
		}
		if p[i] != t[i] {
			return false
		}
	}

	return true
}
