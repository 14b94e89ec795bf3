package signalk

import (
	"encoding/json"
	"testing"
	"time"
)

func TestDebouncer_Allow(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	d := NewDebouncer(500 * time.Millisecond)
	d.now = func() time.Time { return now }

	sog := Delta{Context: "vessels.self", Path: "navigation.speedOverGround", Value: json.RawMessage("1")}
	cog := Delta{Context: "vessels.self", Path: "navigation.courseOverGroundTrue", Value: json.RawMessage("1")}

	if !d.Allow(sog) {
		t.Error("first update should pass")
	}
	if !d.Allow(cog) {
		t.Error("first update of another path should pass")
	}

	now = now.Add(200 * time.Millisecond)
	if d.Allow(sog) {
		t.Error("repeat inside the window should be dropped")
	}

	meta := sog
	meta.IsMeta = true
	if !d.Allow(meta) {
		t.Error("meta update should be keyed separately")
	}

	now = now.Add(300 * time.Millisecond)
	if !d.Allow(sog) {
		t.Error("update after the window should pass")
	}
}

func TestDebouncer_ZeroWindowPassesEverything(t *testing.T) {
	d := NewDebouncer(0)
	delta := Delta{Context: "vessels.self", Path: "a"}
	for i := 0; i < 3; i++ {
		if !d.Allow(delta) {
			t.Fatalf("Allow() call %d = false, want true", i)
		}
	}
}
