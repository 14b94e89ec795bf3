package signalk

import (
	"net/http"
	"sync"
	"time"
)

// pendingPut is a PUT awaiting its final response.
type pendingPut struct {
	done  func(PutResult)
	timer *time.Timer
}

// pendingPuts correlates PUT responses with their callbacks by requestId.
type pendingPuts struct {
	timeout time.Duration

	mu      sync.Mutex
	pending map[string]*pendingPut
}

func newPendingPuts(timeout time.Duration) *pendingPuts {
	return &pendingPuts{
		timeout: timeout,
		pending: make(map[string]*pendingPut),
	}
}

// add registers a request. If no final response arrives within the timeout
// the request resolves as failed with 504.
func (p *pendingPuts) add(requestID string, done func(PutResult)) {
	entry := &pendingPut{done: done}

	p.mu.Lock()
	p.pending[requestID] = entry
	entry.timer = time.AfterFunc(p.timeout, func() {
		p.resolve(PutResult{
			RequestID:  requestID,
			State:      StateFailed,
			StatusCode: http.StatusGatewayTimeout,
			Message:    "no response from server",
		})
	})
	p.mu.Unlock()
}

// remove forgets a request without calling its callback.
func (p *pendingPuts) remove(requestID string) {
	p.mu.Lock()
	entry, ok := p.pending[requestID]
	delete(p.pending, requestID)
	p.mu.Unlock()

	if ok {
		entry.timer.Stop()
	}
}

// resolve delivers a response. Interim PENDING responses keep the request
// open. It reports whether the requestId was known.
func (p *pendingPuts) resolve(res PutResult) bool {
	p.mu.Lock()
	entry, ok := p.pending[res.RequestID]
	if !ok {
		p.mu.Unlock()
		return false
	}
	if res.State == StatePending || res.StatusCode == http.StatusAccepted {
		p.mu.Unlock()
		return true
	}
	delete(p.pending, res.RequestID)
	p.mu.Unlock()

	entry.timer.Stop()
	if entry.done != nil {
		entry.done(res)
	}
	return true
}

// abandon drops every pending request without calling back.
func (p *pendingPuts) abandon() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, entry := range p.pending {
		entry.timer.Stop()
		delete(p.pending, id)
	}
}

func (p *pendingPuts) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}
