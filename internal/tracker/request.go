package tracker

import (
	"encoding/json"
	"sync"
)

// Request is one outstanding message and its single-shot completion slot.
type Request struct {
	ID      int64
	Message json.RawMessage

	once     sync.Once
	done     chan struct{}
	response json.RawMessage
	err      error
}

func newRequest(id int64, msg json.RawMessage) *Request {
	return &Request{
		ID:      id,
		Message: msg,
		done:    make(chan struct{}),
	}
}

// Done is closed once the request has been resolved or rejected.
func (r *Request) Done() <-chan struct{} {
	return r.done
}

// Result returns the response or the rejection error. It is only
// meaningful after Done is closed.
func (r *Request) Result() (json.RawMessage, error) {
	return r.response, r.err
}

// Resolve completes the request with resp. Only the first completion takes
// effect; it reports whether this call was the one.
func (r *Request) Resolve(resp json.RawMessage) bool {
	return r.complete(resp, nil)
}

// Reject completes the request with err.
func (r *Request) Reject(err error) bool {
	return r.complete(nil, err)
}

func (r *Request) complete(resp json.RawMessage, err error) bool {
	completed := false
	r.once.Do(func() {
		r.response = resp
		r.err = err
		close(r.done)
		completed = true
	})
	return completed
}
