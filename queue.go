package jalur

import (
	"errors"
	"sync"
)

// maxSendAttempts caps drain retries per queued frame. A frame failing
// this many writes is dropped silently; buffering is fire-and-forget,
// not a delivery guarantee.
const maxSendAttempts = 3

// errDrainInterrupted tells the drain loop the connection is no longer
// writable. The frame keeps its attempt count and stays queued for the
// next Connected transition.
var errDrainInterrupted = errors.New("jalur: drain interrupted")

// pendingFrame is an outbound frame buffered while the connection is
// not open.
type pendingFrame struct {
	messageType int
	payload     []byte
	attempts    int
}

// outboundQueue buffers outbound frames until the connection opens,
// then drains them in FIFO order. In-memory only; nothing survives a
// process restart.
type outboundQueue struct {
	mu       sync.Mutex
	frames   []*pendingFrame
	draining bool
}

func newOutboundQueue() *outboundQueue {
	return &outboundQueue{}
}

// push appends a frame to the tail.
func (q *outboundQueue) push(messageType int, payload []byte) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.frames = append(q.frames, &pendingFrame{messageType: messageType, payload: payload})
}

// depth reports the number of buffered frames.
func (q *outboundQueue) depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.frames)
}

// bypass reports whether a direct write may skip the queue. Only an
// empty, non-draining queue may be skipped; otherwise the new frame must
// queue behind the buffered ones to preserve FIFO order across the
// Connected transition.
func (q *outboundQueue) bypass() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.frames) == 0 && !q.draining
}

// drain flushes buffered frames through write in FIFO order. A write
// failure increments the frame's attempt count and retries it at the
// head while attempts stay under maxSendAttempts, then hands it to
// onDrop and moves on. A write returning errDrainInterrupted stops the
// drain with the frame requeued and its attempt count untouched. Only
// one drain runs at a time; frames pushed while draining are flushed by
// the same pass.
func (q *outboundQueue) drain(write func(messageType int, payload []byte) error, onDrop func(*pendingFrame)) {
	q.mu.Lock()
	if q.draining {
		q.mu.Unlock()
		return
	}
	q.draining = true
	q.mu.Unlock()

	for {
		q.mu.Lock()
		if len(q.frames) == 0 {
			q.draining = false
			q.mu.Unlock()
			return
		}
		frame := q.frames[0]
		q.frames = q.frames[1:]
		q.mu.Unlock()

		err := write(frame.messageType, frame.payload)
		if err == nil {
			continue
		}

		if errors.Is(err, errDrainInterrupted) {
			q.mu.Lock()
			q.frames = append([]*pendingFrame{frame}, q.frames...)
			q.draining = false
			q.mu.Unlock()
			return
		}

		frame.attempts++
		if frame.attempts < maxSendAttempts {
			q.mu.Lock()
			q.frames = append([]*pendingFrame{frame}, q.frames...)
			q.mu.Unlock()
			continue
		}

		if onDrop != nil {
			onDrop(frame)
		}
	}
}

// reset discards every buffered frame.
func (q *outboundQueue) reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.frames = nil
}
