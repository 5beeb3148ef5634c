package jalur

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/websocket"
)

// ConnState is the lifecycle state of a socket's underlying connection.
type ConnState int

const (
	StateNotConnected ConnState = iota
	StateConnecting
	StateConnected
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateNotConnected:
		return "not_connected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Frame is one inbound message delivered by a connection instance.
type Frame struct {
	Type    int
	Payload []byte
}

// defaultCorrelationTimeout bounds SendAndWait when no timeout is given.
const defaultCorrelationTimeout = 10 * time.Second

// defaultReconnectDelay is the fixed backoff before an automatic
// reconnect after an unexpected close.
const defaultReconnectDelay = 2 * time.Second

// frameBuffer sizes the per-connection inbound channel between the read
// loop and the dispatch goroutine.
const frameBuffer = 32

// Socket is a resilient WebSocket transport: a connection lifecycle
// state machine with automatic reconnection, outbound buffering while
// the connection is not open, and request/response correlation over the
// unordered duplex stream. It is safe for concurrent use.
//
// Each successful dial starts a new connection generation owning exactly
// one underlying conn, one read loop and one dispatch goroutine; a
// reconnect discards the prior generation entirely.
type Socket struct {
	url     string
	dialer  *websocket.Dialer
	clock   clock.Clock
	logger  Logger
	debug   *DebugConfig
	metrics *MetricsCollector

	autoReconnect  bool
	reconnectDelay time.Duration
	pingInterval   time.Duration
	extract        ExtractFunc

	onConnected     func()
	onDisconnected  func(error)
	onStringMessage func(string)
	onDataMessage   func([]byte)

	queue  *outboundQueue
	router *correlationRouter

	// writeMu serializes writes to the underlying conn; gorilla permits
	// one concurrent writer.
	writeMu sync.Mutex

	mu             sync.Mutex
	state          ConnState
	closeErr       error
	conn           *websocket.Conn
	gen            int
	pingTicker     *clock.Ticker
	pingDone       chan struct{}
	reconnectTimer *clock.Timer
	manualClose    bool
}

// NewSocket creates a socket for the given ws:// or wss:// URL. The
// socket starts NotConnected; call Connect to dial.
func NewSocket(url string, opts ...SocketOption) *Socket {
	s := &Socket{
		url:            url,
		dialer:         websocket.DefaultDialer,
		clock:          clock.New(),
		debug:          DefaultDebugConfig(),
		reconnectDelay: defaultReconnectDelay,
		queue:          newOutboundQueue(),
		router:         newCorrelationRouter(),
		state:          StateNotConnected,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current lifecycle state.
func (s *Socket) State() ConnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// CloseReason returns the error that closed the current generation, if
// the socket is Closed and the closure was not manual.
func (s *Socket) CloseReason() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeErr
}

// Connect dials the socket URL. Safe to call from any state; a socket
// already Connecting or Connected is left alone. A dial failure
// transitions to Closed and, with auto-reconnect enabled, schedules a
// retry like any other closure.
func (s *Socket) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateConnecting || s.state == StateConnected {
		s.mu.Unlock()
		return nil
	}
	s.state = StateConnecting
	s.manualClose = false
	s.mu.Unlock()
	s.metrics.RecordSocketState(s.url, StateConnecting)

	if s.debugSocket() {
		s.logger.Debug("Dialing socket", "url", s.url)
	}

	conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		s.mu.Lock()
		s.state = StateClosed
		s.closeErr = err
		auto := s.autoReconnect && !s.manualClose
		s.mu.Unlock()
		s.metrics.RecordSocketState(s.url, StateClosed)

		if s.debugSocket() {
			s.logger.Warn("Dial failed", "url", s.url, "error", err.Error())
		}
		if auto {
			s.scheduleReconnect()
		}
		return err
	}

	s.mu.Lock()
	if s.manualClose {
		// Disconnected while the dial was in flight.
		s.mu.Unlock()
		_ = conn.Close()
		return ErrSocketClosed
	}
	s.gen++
	gen := s.gen
	s.conn = conn
	s.state = StateConnected
	s.closeErr = nil
	s.mu.Unlock()
	s.metrics.RecordSocketState(s.url, StateConnected)

	if s.debugSocket() {
		s.logger.Debug("Socket connected", "url", s.url, "generation", gen)
	}

	if s.onConnected != nil {
		s.onConnected()
	}

	frames := make(chan Frame, frameBuffer)
	go s.readLoop(conn, gen, frames)
	go s.dispatchLoop(frames)
	go s.drainQueue(gen)
	s.startKeepalive(gen)

	return nil
}

// Disconnect closes the connection locally and cancels any pending
// reconnect. Idempotent: calling it while already Closed or NotConnected
// never produces a second OnDisconnected callback.
func (s *Socket) Disconnect() {
	s.mu.Lock()
	if s.state == StateClosed || s.state == StateNotConnected {
		// An unexpected close may have left a reconnect pending; a
		// manual close still cancels it.
		s.manualClose = true
		s.mu.Unlock()
		s.cancelReconnect()
		return
	}
	s.manualClose = true
	s.gen++ // orphan the active read loop
	conn := s.conn
	s.conn = nil
	s.state = StateClosed
	s.closeErr = nil
	s.mu.Unlock()
	s.metrics.RecordSocketState(s.url, StateClosed)

	s.stopKeepalive()
	s.cancelReconnect()

	if conn != nil {
		s.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		s.writeMu.Unlock()
		_ = conn.Close()
	}

	if s.debugSocket() {
		s.logger.Debug("Socket disconnected", "url", s.url)
	}

	if s.onDisconnected != nil {
		s.onDisconnected(nil)
	}
}

// Send transmits a binary frame, or buffers it while the connection is
// not open. Buffering is fire-and-forget: delivery is attempted on the
// next Connected transition with bounded retries, then the frame is
// dropped. Callers needing delivery confirmation should use SendAndWait.
func (s *Socket) Send(payload []byte) error {
	return s.send(websocket.BinaryMessage, payload)
}

// SendText transmits a text frame with the same buffering semantics as
// Send.
func (s *Socket) SendText(text string) error {
	return s.send(websocket.TextMessage, []byte(text))
}

// SendRaw transmits text without touching the correlation machinery.
func (s *Socket) SendRaw(text string) error {
	return s.send(websocket.TextMessage, []byte(text))
}

func (s *Socket) send(messageType int, payload []byte) error {
	s.mu.Lock()
	connected := s.state == StateConnected
	conn := s.conn
	gen := s.gen
	s.mu.Unlock()

	if !connected || conn == nil || !s.queue.bypass() {
		s.queue.push(messageType, payload)
		s.metrics.RecordQueueDepth(s.url, s.queue.depth())
		if s.debugQueue() {
			s.logger.Debug("Frame queued", "url", s.url, "depth", s.queue.depth())
		}
		// A frame queued while connected sits behind an active drain;
		// kick one in case the last drain already finished.
		if connected {
			go s.drainQueue(gen)
		}
		return nil
	}

	return s.writeFrame(conn, messageType, payload)
}

// SendAndWait transmits payload and blocks until an inbound frame whose
// extracted id equals id arrives, or timeout elapses (10s when zero or
// negative). Requires an extractor configured via WithExtractor; without
// one the call fails fast with a ConfigurationError.
func (s *Socket) SendAndWait(ctx context.Context, payload []byte, id string, timeout time.Duration) ([]byte, error) {
	if s.extract == nil {
		return nil, &ClientError{
			Type:      ErrorTypeConfiguration,
			Message:   "correlated send requires a message id extractor",
			Cause:     ErrExtractorMissing,
			URL:       s.url,
			Timestamp: time.Now(),
		}
	}
	if timeout <= 0 {
		timeout = defaultCorrelationTimeout
	}

	w := s.router.register(id)

	if err := s.Send(payload); err != nil {
		s.router.remove(id, w)
		return nil, err
	}

	timer := s.clock.Timer(timeout)
	defer timer.Stop()

	select {
	case data := <-w.result:
		return data, nil
	case <-w.superseded:
		return nil, &ClientError{
			Type:      ErrorTypeCorrelationTimeout,
			Message:   "waiter superseded by a newer registration for the same id",
			Cause:     ErrCorrelationTimeout,
			URL:       s.url,
			Timestamp: time.Now(),
		}
	case <-timer.C:
		s.router.remove(id, w)
		s.metrics.RecordCorrelationTimeout(s.url)
		if s.debugCorrelation() {
			s.logger.Warn("Correlated send timed out", "url", s.url, "id", id, "timeout", timeout)
		}
		return nil, &ClientError{
			Type:      ErrorTypeCorrelationTimeout,
			Message:   "no matching inbound frame before deadline",
			Cause:     ErrCorrelationTimeout,
			URL:       s.url,
			Timestamp: time.Now(),
		}
	case <-ctx.Done():
		s.router.remove(id, w)
		return nil, ctx.Err()
	}
}

// readLoop re-arms after every delivered frame. On a receive failure it
// closes the inbound sequence and drives the Closed transition, unless
// its generation has already been discarded.
func (s *Socket) readLoop(conn *websocket.Conn, gen int, frames chan<- Frame) {
	defer close(frames)
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			s.handleClose(gen, err)
			return
		}
		s.metrics.RecordFrame("in", frameTypeName(messageType))
		frames <- Frame{Type: messageType, Payload: data}
	}
}

// dispatchLoop fans inbound frames out: correlation router first, then
// the general message callbacks. Wire arrival order is preserved per
// connection instance.
func (s *Socket) dispatchLoop(frames <-chan Frame) {
	for frame := range frames {
		s.dispatch(frame)
	}
}

func (s *Socket) dispatch(frame Frame) {
	if s.extract != nil {
		if id, ok := s.extract(frame.Payload); ok {
			if s.router.resolve(id, frame.Payload) {
				if s.debugCorrelation() {
					s.logger.Debug("Frame correlated", "url", s.url, "id", id)
				}
				return
			}
		}
	}

	switch frame.Type {
	case websocket.TextMessage:
		if s.onStringMessage != nil {
			s.onStringMessage(string(frame.Payload))
		}
	case websocket.BinaryMessage:
		if s.onDataMessage != nil {
			s.onDataMessage(frame.Payload)
		}
	}
}

// handleClose runs the Closed transition for a generation-owned failure.
// Stale generations (already replaced by Disconnect or a reconnect) are
// ignored so the callback fires at most once per closure.
func (s *Socket) handleClose(gen int, reason error) {
	s.mu.Lock()
	if gen != s.gen || s.state != StateConnected {
		s.mu.Unlock()
		return
	}
	s.state = StateClosed
	s.closeErr = reason
	conn := s.conn
	s.conn = nil
	auto := s.autoReconnect && !s.manualClose
	s.mu.Unlock()
	s.metrics.RecordSocketState(s.url, StateClosed)

	if conn != nil {
		_ = conn.Close()
	}
	s.stopKeepalive()

	if s.debugSocket() {
		s.logger.Warn("Socket closed", "url", s.url, "reason", reason.Error())
	}

	if s.onDisconnected != nil {
		s.onDisconnected(reason)
	}

	if auto {
		s.scheduleReconnect()
	}
}

// drainQueue flushes buffered frames for the given generation in FIFO
// order. Writes against a discarded generation interrupt the drain and
// leave the remaining frames for the next Connected transition.
func (s *Socket) drainQueue(gen int) {
	s.queue.drain(func(messageType int, payload []byte) error {
		s.mu.Lock()
		live := s.state == StateConnected && s.gen == gen
		conn := s.conn
		s.mu.Unlock()
		if !live {
			return errDrainInterrupted
		}
		return s.writeFrame(conn, messageType, payload)
	}, func(frame *pendingFrame) {
		s.metrics.RecordDroppedFrame(s.url)
		if s.debugQueue() {
			s.logger.Warn("Queued frame dropped", "url", s.url, "attempts", frame.attempts)
		}
	})
	s.metrics.RecordQueueDepth(s.url, s.queue.depth())
}

func (s *Socket) writeFrame(conn *websocket.Conn, messageType int, payload []byte) error {
	s.writeMu.Lock()
	err := conn.WriteMessage(messageType, payload)
	s.writeMu.Unlock()
	if err == nil {
		s.metrics.RecordFrame("out", frameTypeName(messageType))
	}
	return err
}

func (s *Socket) debugSocket() bool {
	return s.debug != nil && s.debug.Enabled && s.debug.LogSocket && s.logger != nil
}

func (s *Socket) debugQueue() bool {
	return s.debug != nil && s.debug.Enabled && s.debug.LogQueue && s.logger != nil
}

func (s *Socket) debugCorrelation() bool {
	return s.debug != nil && s.debug.Enabled && s.debug.LogCorrelation && s.logger != nil
}

func frameTypeName(messageType int) string {
	switch messageType {
	case websocket.TextMessage:
		return "text"
	case websocket.BinaryMessage:
		return "binary"
	case websocket.PingMessage:
		return "ping"
	case websocket.PongMessage:
		return "pong"
	case websocket.CloseMessage:
		return "close"
	default:
		return "other"
	}
}
