package jalur

import (
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/websocket"
)

// SocketOption represents a configuration option for Socket.
type SocketOption func(*Socket)

// WithAutoReconnect enables automatic reconnection after an unexpected
// closure.
func WithAutoReconnect() SocketOption {
	return func(s *Socket) {
		s.autoReconnect = true
	}
}

// WithReconnectDelay overrides the fixed backoff before an automatic
// reconnect.
func WithReconnectDelay(d time.Duration) SocketOption {
	return func(s *Socket) {
		s.reconnectDelay = d
	}
}

// WithPingInterval enables keepalive pings while the connection is open.
func WithPingInterval(d time.Duration) SocketOption {
	return func(s *Socket) {
		s.pingInterval = d
	}
}

// WithExtractor installs the correlation-id extraction function.
// Required for SendAndWait.
func WithExtractor(fn ExtractFunc) SocketOption {
	return func(s *Socket) {
		s.extract = fn
	}
}

// WithDialer sets a custom websocket dialer.
func WithDialer(dialer *websocket.Dialer) SocketOption {
	return func(s *Socket) {
		s.dialer = dialer
	}
}

// OnConnected registers a callback fired on every Connected transition.
func OnConnected(fn func()) SocketOption {
	return func(s *Socket) {
		s.onConnected = fn
	}
}

// OnDisconnected registers a callback fired once per closure. The error
// is nil for a manual disconnect.
func OnDisconnected(fn func(error)) SocketOption {
	return func(s *Socket) {
		s.onDisconnected = fn
	}
}

// OnStringMessage registers the general callback for uncorrelated text
// frames.
func OnStringMessage(fn func(string)) SocketOption {
	return func(s *Socket) {
		s.onStringMessage = fn
	}
}

// OnDataMessage registers the general callback for uncorrelated binary
// frames.
func OnDataMessage(fn func([]byte)) SocketOption {
	return func(s *Socket) {
		s.onDataMessage = fn
	}
}

// WithSocketLogger sets a custom logger for socket debug output.
func WithSocketLogger(logger Logger) SocketOption {
	return func(s *Socket) {
		s.logger = logger
	}
}

// WithSocketDebug enables socket debug logging.
func WithSocketDebug() SocketOption {
	return func(s *Socket) {
		if s.debug == nil {
			s.debug = DefaultDebugConfig()
		}
		s.debug.Enabled = true
	}
}

// WithSocketDebugConfig sets custom debug configuration.
func WithSocketDebugConfig(config *DebugConfig) SocketOption {
	return func(s *Socket) {
		s.debug = config
	}
}

// WithSocketMetrics sets the metrics collector used by the socket.
func WithSocketMetrics(collector *MetricsCollector) SocketOption {
	return func(s *Socket) {
		s.metrics = collector
	}
}

// withSocketClock injects a clock for deterministic timer tests.
func withSocketClock(c clock.Clock) SocketOption {
	return func(s *Socket) {
		s.clock = c
	}
}
