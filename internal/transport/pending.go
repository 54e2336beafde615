package transport

import (
	"encoding/json"
	"sync"
)

// Response carries the payload element of a 42/43 frame back to the caller
// that issued the request. Ack frames do not echo the event name, so Event is
// restored from the original request when the server omits it.
type Response struct {
	Event   string
	Payload json.RawMessage
}

type pendingResult struct {
	resp Response
	err  error
}

// pendingRequest tracks one in-flight request awaiting a server frame with a
// matching message id.
type pendingRequest struct {
	id    int64
	event string
	ch    chan pendingResult
}

// pendingSet is the registry of in-flight requests keyed by message id. The
// read loop resolves entries, Send registers and (on timeout) withdraws them,
// and teardown rejects whatever is left.
type pendingSet struct {
	mu  sync.Mutex
	req map[int64]*pendingRequest
}

func newPendingSet() *pendingSet {
	return &pendingSet{req: make(map[int64]*pendingRequest)}
}

func (p *pendingSet) add(id int64, event string) *pendingRequest {
	pr := &pendingRequest{id: id, event: event, ch: make(chan pendingResult, 1)}
	p.mu.Lock()
	p.req[id] = pr
	p.mu.Unlock()
	return pr
}

// remove withdraws a request, typically after its deadline fired. Returns
// false when the read loop already resolved it.
func (p *pendingSet) remove(id int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.req[id]; !ok {
		return false
	}
	delete(p.req, id)
	return true
}

// resolve hands the response to the waiting caller. Returns the original
// event name so the dispatcher can label ack frames, and false when no
// request with that id is in flight.
func (p *pendingSet) resolve(id int64, resp Response) (string, bool) {
	p.mu.Lock()
	pr, ok := p.req[id]
	if ok {
		delete(p.req, id)
	}
	p.mu.Unlock()
	if !ok {
		return "", false
	}
	if resp.Event == "" {
		resp.Event = pr.event
	}
	pr.ch <- pendingResult{resp: resp}
	return pr.event, true
}

// rejectAll fails every in-flight request with err. Called exactly once per
// connection teardown.
func (p *pendingSet) rejectAll(err error) {
	p.mu.Lock()
	reqs := p.req
	p.req = make(map[int64]*pendingRequest)
	p.mu.Unlock()
	for _, pr := range reqs {
		pr.ch <- pendingResult{err: err}
	}
}

func (p *pendingSet) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.req)
}
