// Package jalur is a client-side network access layer with two halves:
//
//   - A rate-limited HTTP dispatcher: per-endpoint sliding-window
//     admission control with serialized admission decisions, merged
//     global/per-call headers and query parameters, success-range
//     classification and typed errors carrying the response body.
//   - A resilient WebSocket transport: a connection lifecycle state
//     machine with automatic reconnection after a fixed backoff,
//     outbound buffering with bounded redelivery while the connection
//     is not open, and request/response correlation by an
//     application-supplied message id.
//
// Design goals:
//   - Small surface area – functional options configure everything
//   - Safe concurrent use of a single Client or Socket instance
//   - Pluggable logging (SimpleLogger, zap adapter) and Prometheus metrics
//
// Typical HTTP usage:
//
//	client := jalur.New("https://api.example.com",
//	    jalur.WithGlobalHeader("Authorization", "Bearer ..."),
//	    jalur.WithMetrics(),
//	)
//	items, err := jalur.Call[[]Item](ctx, client,
//	    jalur.NewRequest("GET", "/items",
//	        jalur.WithRatePolicy(3, time.Second)))
//
// Typical socket usage:
//
//	sock := jalur.NewSocket("wss://stream.example.com/ws",
//	    jalur.WithAutoReconnect(),
//	    jalur.WithExtractor(extractID),
//	    jalur.OnStringMessage(handle),
//	)
//	if err := sock.Connect(ctx); err != nil { ... }
//	reply, err := sock.SendAndWait(ctx, payload, "42", 0)
//
// The library avoids opinionated logging: provide a Logger (e.g. via
// WithSimpleLogger or NewZapLogger) and enable debug flags selectively
// for insight without noise.
package jalur
