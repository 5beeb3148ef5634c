package jalur

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
)

// Reconnect supervision: every Closed transition with auto-reconnect
// enabled schedules exactly one reconnect attempt after a fixed delay.
// The keepalive timer is torn down before the new dial, and a manual
// Disconnect cancels any pending attempt.

// scheduleReconnect arms the reconnect timer for the current closure.
// At most one timer is pending at a time.
func (s *Socket) scheduleReconnect() {
	s.mu.Lock()
	if s.reconnectTimer != nil {
		s.mu.Unlock()
		return
	}
	delay := s.reconnectDelay
	s.reconnectTimer = s.clock.AfterFunc(delay, s.reconnect)
	s.mu.Unlock()

	if s.debugSocket() {
		s.logger.Debug("Reconnect scheduled", "url", s.url, "delay", delay)
	}
}

// reconnect fires from the timer: it re-checks that the socket is still
// unexpectedly closed, then dials a fresh connection generation.
func (s *Socket) reconnect() {
	s.mu.Lock()
	s.reconnectTimer = nil
	eligible := s.state == StateClosed && !s.manualClose && s.autoReconnect
	s.mu.Unlock()

	if !eligible {
		return
	}

	s.stopKeepalive()
	s.metrics.RecordReconnect(s.url)
	if s.debugSocket() {
		s.logger.Info("Reconnecting", "url", s.url)
	}

	_ = s.Connect(context.Background())
}

// cancelReconnect stops a pending reconnect attempt, if any.
func (s *Socket) cancelReconnect() {
	s.mu.Lock()
	timer := s.reconnectTimer
	s.reconnectTimer = nil
	s.mu.Unlock()

	if timer != nil {
		timer.Stop()
	}
}

// startKeepalive arms the optional ping timer for a connection
// generation. When the timer fires while the connection is no longer
// open, the timer is cancelled rather than retried.
func (s *Socket) startKeepalive(gen int) {
	if s.pingInterval <= 0 {
		return
	}

	s.mu.Lock()
	if s.pingTicker != nil {
		s.pingTicker.Stop()
	}
	if s.pingDone != nil {
		close(s.pingDone)
	}
	ticker := s.clock.Ticker(s.pingInterval)
	done := make(chan struct{})
	s.pingTicker = ticker
	s.pingDone = done
	s.mu.Unlock()

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
			}

			s.mu.Lock()
			live := s.state == StateConnected && s.gen == gen
			conn := s.conn
			s.mu.Unlock()

			if !live {
				return
			}

			s.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second))
			s.writeMu.Unlock()
			if err != nil {
				return
			}
			s.metrics.RecordFrame("out", "ping")
		}
	}()
}

// stopKeepalive tears down the ping timer, if armed.
func (s *Socket) stopKeepalive() {
	s.mu.Lock()
	ticker := s.pingTicker
	done := s.pingDone
	s.pingTicker = nil
	s.pingDone = nil
	s.mu.Unlock()

	if ticker != nil {
		ticker.Stop()
	}
	if done != nil {
		close(done)
	}
}
