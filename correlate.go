package jalur

import (
	"sync"
)

// ExtractFunc pulls the correlation id out of an inbound payload. ok is
// false when the payload carries no id.
type ExtractFunc func(payload []byte) (id string, ok bool)

// correlationWaiter is one pending correlated call. Exactly one of the
// result channel, the superseded channel or the caller's timeout path
// resolves it.
type correlationWaiter struct {
	id         string
	result     chan []byte
	superseded chan struct{}
}

// correlationRouter maps correlation ids to single pending waiters. One
// waiter slot per id: registering an id that is already pending releases
// the prior waiter as superseded (last registered wins). A resolved or
// abandoned id is removed, so later frames bearing it fall through to
// the general message callbacks.
type correlationRouter struct {
	mu      sync.Mutex
	waiters map[string]*correlationWaiter
}

func newCorrelationRouter() *correlationRouter {
	return &correlationRouter{
		waiters: make(map[string]*correlationWaiter),
	}
}

// register creates the waiter slot for id before the outbound send, so
// an immediate response cannot slip past. A displaced waiter is released
// through its superseded channel rather than orphaned.
func (r *correlationRouter) register(id string) *correlationWaiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prior, ok := r.waiters[id]; ok {
		close(prior.superseded)
	}

	w := &correlationWaiter{
		id:         id,
		result:     make(chan []byte, 1),
		superseded: make(chan struct{}),
	}
	r.waiters[id] = w
	return w
}

// resolve delivers payload to the waiter pending on id, removing it.
// Reports whether the frame was consumed. The result channel is buffered
// so delivery never blocks the inbound dispatch path.
func (r *correlationRouter) resolve(id string, payload []byte) bool {
	r.mu.Lock()
	w, ok := r.waiters[id]
	if ok {
		delete(r.waiters, id)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}
	w.result <- payload
	return true
}

// remove abandons the waiter, but only if it still owns the slot. A
// newer waiter registered under the same id is left alone.
func (r *correlationRouter) remove(id string, w *correlationWaiter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.waiters[id]; ok && current == w {
		delete(r.waiters, id)
	}
}

// pending reports the number of unresolved waiters.
func (r *correlationRouter) pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.waiters)
}
