// Package tracker keeps the set of requests that wait for a response and
// correlates incoming responses with them by id.
//
// A Tracker is owned by a single goroutine. Only Request completion and
// Batch.Wait may be used from other goroutines.
package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/codefionn/chatline/internal/codec"
)

var (
	// ErrNotObject is returned for messages that cannot carry an id.
	ErrNotObject = errors.New("request message must be a JSON object")
	// ErrDuplicateID is returned when a request id is already pending.
	ErrDuplicateID = errors.New("request id already pending")
	// ErrInvalidID is returned for an id that is not an integer below
	// math.MaxInt64.
	ErrInvalidID = errors.New("request id must be an integer")
)

// Tracker assigns correlation ids and holds pending requests in the order
// they were added.
type Tracker struct {
	lastID  int64
	pending []*Request
	byID    map[int64]*Request
}

// New creates an empty Tracker. The first generated id is 1.
func New() *Tracker {
	return &Tracker{
		byID: make(map[int64]*Request),
	}
}

// NextID returns a fresh id. Ids are never reused by the same Tracker.
func (t *Tracker) NextID() int64 {
	t.lastID++
	return t.lastID
}

// CreateRequest wraps msg in a Request. An "id" is assigned when msg has
// none; a numeric id already present is kept and the id counter moves past
// it so generated ids never collide with it.
func (t *Tracker) CreateRequest(msg json.RawMessage) (*Request, error) {
	value := gjson.ParseBytes(msg)
	if !value.IsObject() {
		return nil, ErrNotObject
	}

	if idField := value.Get("id"); idField.Exists() {
		id, ok := codec.ParseID(idField)
		if !ok || id == math.MaxInt64 {
			return nil, fmt.Errorf("%w: %s", ErrInvalidID, idField.Raw)
		}
		if id > t.lastID {
			t.lastID = id
		}
		return newRequest(id, msg), nil
	}

	id := t.NextID()
	withID, err := sjson.SetBytes(msg, "id", id)
	if err != nil {
		return nil, fmt.Errorf("assign request id: %w", err)
	}
	return newRequest(id, withID), nil
}

// Add appends requests to the pending set. A request whose id is already
// pending is rejected with ErrDuplicateID and left out; the others are
// still added and returned.
func (t *Tracker) Add(reqs ...*Request) ([]*Request, error) {
	added := make([]*Request, 0, len(reqs))
	var errs []error
	for _, req := range reqs {
		if _, exists := t.byID[req.ID]; exists {
			errs = append(errs, fmt.Errorf("%w: %d", ErrDuplicateID, req.ID))
			continue
		}
		t.byID[req.ID] = req
		t.pending = append(t.pending, req)
		added = append(added, req)
	}
	return added, errors.Join(errs...)
}

// Pending returns the pending requests in submission order.
func (t *Tracker) Pending() []*Request {
	out := make([]*Request, len(t.pending))
	copy(out, t.pending)
	return out
}

// Len returns the number of pending requests.
func (t *Tracker) Len() int {
	return len(t.pending)
}

// Has reports whether a request with id is pending.
func (t *Tracker) Has(id int64) bool {
	_, ok := t.byID[id]
	return ok
}

// Match resolves every pending request that one of responses answers and
// removes it from the set. Responses that match nothing are returned.
func (t *Tracker) Match(responses []codec.Response) (unmatched []codec.Response) {
	for _, resp := range responses {
		if !resp.HasID || !t.resolve(resp.ID, resp.Raw) {
			unmatched = append(unmatched, resp)
		}
	}
	return unmatched
}

func (t *Tracker) resolve(id int64, raw json.RawMessage) bool {
	req, ok := t.byID[id]
	if !ok {
		return false
	}
	t.remove(req)
	req.Resolve(raw)
	return true
}

func (t *Tracker) remove(req *Request) {
	delete(t.byID, req.ID)
	for i, p := range t.pending {
		if p == req {
			t.pending = append(t.pending[:i], t.pending[i+1:]...)
			return
		}
	}
}

// RejectAll completes every pending request with err and empties the set.
func (t *Tracker) RejectAll(err error) {
	for _, req := range t.pending {
		req.Reject(err)
	}
	t.pending = nil
	t.byID = make(map[int64]*Request)
}

// Batch returns a combinator over everything currently pending.
func (t *Tracker) Batch() *Batch {
	return &Batch{requests: t.Pending()}
}

// Batch waits for a fixed group of requests.
type Batch struct {
	requests []*Request
}

// Requests returns the requests the batch waits for.
func (b *Batch) Requests() []*Request {
	return b.requests
}

// Wait blocks until every request in the batch completed and returns the
// responses in batch order. The first rejection error is returned after all
// requests are done. ctx only bounds the wait; requests stay pending.
func (b *Batch) Wait(ctx context.Context) ([]json.RawMessage, error) {
	out := make([]json.RawMessage, 0, len(b.requests))
	var firstErr error
	for _, req := range b.requests {
		select {
		case <-req.Done():
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		resp, err := req.Result()
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		out = append(out, resp)
	}
	if firstErr != nil {
		return out, firstErr
	}
	return out, nil
}
