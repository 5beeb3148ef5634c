package jalur

import (
	"errors"
	"testing"

	"github.com/gorilla/websocket"
)

func TestDrainPreservesFIFO(t *testing.T) {
	q := newOutboundQueue()
	q.push(websocket.TextMessage, []byte("1"))
	q.push(websocket.TextMessage, []byte("2"))
	q.push(websocket.TextMessage, []byte("3"))

	var sent []string
	q.drain(func(_ int, payload []byte) error {
		sent = append(sent, string(payload))
		return nil
	}, nil)

	if len(sent) != 3 || sent[0] != "1" || sent[1] != "2" || sent[2] != "3" {
		t.Errorf("expected FIFO drain 1,2,3, got %v", sent)
	}
	if q.depth() != 0 {
		t.Errorf("expected empty queue after drain, got depth %d", q.depth())
	}
}

func TestDrainDropsAfterThreeFailures(t *testing.T) {
	q := newOutboundQueue()
	q.push(websocket.TextMessage, []byte("doomed"))
	q.push(websocket.TextMessage, []byte("fine"))

	writeErr := errors.New("write failed")
	var attempts int
	var delivered []string
	var dropped []*pendingFrame

	q.drain(func(_ int, payload []byte) error {
		if string(payload) == "doomed" {
			attempts++
			return writeErr
		}
		delivered = append(delivered, string(payload))
		return nil
	}, func(frame *pendingFrame) {
		dropped = append(dropped, frame)
	})

	if attempts != maxSendAttempts {
		t.Errorf("expected %d attempts before dropping, got %d", maxSendAttempts, attempts)
	}
	if len(dropped) != 1 {
		t.Fatalf("expected 1 dropped frame, got %d", len(dropped))
	}
	if len(delivered) != 1 || delivered[0] != "fine" {
		t.Errorf("drain should continue past a dropped frame, delivered %v", delivered)
	}
}

func TestDrainInterruptedKeepsFrames(t *testing.T) {
	q := newOutboundQueue()
	q.push(websocket.TextMessage, []byte("1"))
	q.push(websocket.TextMessage, []byte("2"))

	q.drain(func(_ int, _ []byte) error {
		return errDrainInterrupted
	}, nil)

	if q.depth() != 2 {
		t.Errorf("interrupted drain must keep frames queued, got depth %d", q.depth())
	}

	// Interruption must not burn an attempt.
	var sent []string
	q.drain(func(_ int, payload []byte) error {
		sent = append(sent, string(payload))
		return nil
	}, nil)

	if len(sent) != 2 || sent[0] != "1" {
		t.Errorf("expected frames redelivered in order after interruption, got %v", sent)
	}
}

func TestRetriedFrameStaysAtHead(t *testing.T) {
	q := newOutboundQueue()
	q.push(websocket.TextMessage, []byte("first"))
	q.push(websocket.TextMessage, []byte("second"))

	failOnce := true
	var sent []string
	q.drain(func(_ int, payload []byte) error {
		if failOnce && string(payload) == "first" {
			failOnce = false
			return errors.New("transient")
		}
		sent = append(sent, string(payload))
		return nil
	}, nil)

	if len(sent) != 2 || sent[0] != "first" || sent[1] != "second" {
		t.Errorf("retried frame must keep its place at the head, got %v", sent)
	}
}

func TestBypass(t *testing.T) {
	q := newOutboundQueue()

	if !q.bypass() {
		t.Error("empty queue should allow direct writes")
	}

	q.push(websocket.TextMessage, []byte("x"))
	if q.bypass() {
		t.Error("non-empty queue must force new sends to queue behind buffered frames")
	}

	q.reset()
	if !q.bypass() {
		t.Error("reset queue should allow direct writes again")
	}
}
