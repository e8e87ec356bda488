package session

import (
	"fmt"
	"sync"
	"time"
)

// PendingCall tracks one staged call from placement to completion. The
// caller stages it on the registry, places the outbound call, then
// waits for the media stream to connect and the session to finish.
type PendingCall struct {
	params Params
	ready  chan *MediaSession
}

// Session blocks until the media stream has connected and the session
// exists, or the timeout passes.
func (p *PendingCall) Session(timeout time.Duration) (*MediaSession, error) {
	select {
	case s := <-p.ready:
		return s, nil
	case <-time.After(timeout):
		return nil, fmt.Errorf("media stream did not connect within %s", timeout)
	}
}

func (p *PendingCall) deliver(s *MediaSession) {
	select {
	case p.ready <- s:
	default:
	}
}

// Registry hands a staged call's parameters to the next inbound media
// stream connection. One call is in flight at a time; staging a new
// call replaces an unclaimed previous one.
type Registry struct {
	mu      sync.Mutex
	pending *PendingCall
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Stage registers the parameters for the next inbound connection and
// returns a handle for awaiting the resulting session.
func (r *Registry) Stage(p Params) *PendingCall {
	r.mu.Lock()
	defer r.mu.Unlock()

	pc := &PendingCall{params: p, ready: make(chan *MediaSession, 1)}
	r.pending = pc
	return pc
}

// claim pops the staged call, or returns nil when nothing is staged.
func (r *Registry) claim() *PendingCall {
	r.mu.Lock()
	defer r.mu.Unlock()

	pc := r.pending
	r.pending = nil
	return pc
}
