package signalk

import (
	"testing"
	"time"
)

func TestPendingPuts_Resolve(t *testing.T) {
	p := newPendingPuts(time.Minute)

	var got []PutResult
	p.add("req-1", func(r PutResult) { got = append(got, r) })

	if !p.resolve(PutResult{RequestID: "req-1", State: StatePending, StatusCode: 202}) {
		t.Fatal("resolve() of known request = false")
	}
	if len(got) != 0 {
		t.Fatalf("pending response delivered %d results, want 0", len(got))
	}

	p.resolve(PutResult{RequestID: "req-1", State: StateCompleted, StatusCode: 200})
	if len(got) != 1 || got[0].StatusCode != 200 {
		t.Fatalf("results = %+v, want one 200", got)
	}

	if p.resolve(PutResult{RequestID: "req-1", State: StateCompleted, StatusCode: 200}) {
		t.Error("resolve() after completion should report unknown request")
	}
	if p.len() != 0 {
		t.Errorf("len() = %d, want 0", p.len())
	}
}

func TestPendingPuts_Timeout(t *testing.T) {
	p := newPendingPuts(20 * time.Millisecond)

	results := make(chan PutResult, 1)
	p.add("req-1", func(r PutResult) { results <- r })

	select {
	case r := <-results:
		if r.StatusCode != 504 || r.State != StateFailed || !r.Failed() {
			t.Errorf("timeout result = %+v, want failed 504", r)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout result not delivered")
	}
}

func TestPendingPuts_RemoveAndAbandon(t *testing.T) {
	p := newPendingPuts(20 * time.Millisecond)
	called := make(chan struct{}, 2)

	p.add("req-1", func(PutResult) { called <- struct{}{} })
	p.add("req-2", func(PutResult) { called <- struct{}{} })
	p.remove("req-1")
	p.abandon()

	select {
	case <-called:
		t.Error("callback called for a removed or abandoned request")
	case <-time.After(60 * time.Millisecond):
	}
	if p.len() != 0 {
		t.Errorf("len() = %d, want 0", p.len())
	}
}
