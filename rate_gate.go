package jalur

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/andhikayusup/jalur/internal/window"
)

// admitPollInterval is how long a caller without admission sleeps before
// re-evaluating the endpoint's window.
const admitPollInterval = 50 * time.Millisecond

// endpointState is the per-endpoint admission state, created lazily on
// first use and kept for the gate's lifetime.
type endpointState struct {
	// admitMu serializes admission evaluations so the prune-count-record
	// sequence is atomic per endpoint.
	admitMu sync.Mutex
	history *window.Window

	// startMu serializes call-start bookkeeping, independent of the
	// admission window. Admitted calls still execute concurrently.
	startMu sync.Mutex
	started int64
}

// RateGate enforces a sliding-window call-rate limit per endpoint with
// at most one in-flight admission decision per endpoint at a time. It is
// safe for concurrent use. State never crosses endpoint boundaries.
type RateGate struct {
	clock clock.Clock

	mu        sync.RWMutex
	endpoints map[string]*endpointState
}

// NewRateGate creates an empty gate on the wall clock.
func NewRateGate() *RateGate {
	return newRateGate(clock.New())
}

func newRateGate(c clock.Clock) *RateGate {
	return &RateGate{
		clock:     c,
		endpoints: make(map[string]*endpointState),
	}
}

func (g *RateGate) endpoint(key string) *endpointState {
	g.mu.RLock()
	state, ok := g.endpoints[key]
	g.mu.RUnlock()
	if ok {
		return state
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if state, ok = g.endpoints[key]; ok {
		return state
	}
	state = &endpointState{history: window.New()}
	g.endpoints[key] = state
	return state
}

// Admit evaluates one admission decision for the endpoint right now.
// Admission records the call in the endpoint's history; rejection leaves
// the history untouched. A nil policy always admits without touching any
// gate.
func (g *RateGate) Admit(endpoint string, policy *RatePolicy) bool {
	if policy == nil {
		return true
	}

	state := g.endpoint(endpoint)
	state.admitMu.Lock()
	defer state.admitMu.Unlock()

	return state.history.Admit(g.clock.Now(), policy.Times, policy.Interval)
}

// Wait polls Admit every 50ms until the call is admitted or ctx is done.
// Calls are held, never rejected outright.
func (g *RateGate) Wait(ctx context.Context, endpoint string, policy *RatePolicy) error {
	if policy == nil {
		return nil
	}

	for {
		if g.Admit(endpoint, policy) {
			return nil
		}

		timer := g.clock.Timer(admitPollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Begin records that a call against the endpoint has started and returns
// the running count. Bookkeeping is serialized by the endpoint's start
// gate so concurrent callers cannot race on it.
func (g *RateGate) Begin(endpoint string) int64 {
	state := g.endpoint(endpoint)
	state.startMu.Lock()
	defer state.startMu.Unlock()
	state.started++
	return state.started
}

// Started reports how many calls have begun against the endpoint.
func (g *RateGate) Started(endpoint string) int64 {
	state := g.endpoint(endpoint)
	state.startMu.Lock()
	defer state.startMu.Unlock()
	return state.started
}

// Reset discards all per-endpoint state.
func (g *RateGate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.endpoints = make(map[string]*endpointState)
}
