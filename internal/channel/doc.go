// Package channel implements the real-time telemetry channel client.
//
// The Client:
//   - Manages exactly one logical WebSocket connection per instance
//   - Runs a five-state machine (disconnected, connecting, connected,
//     reconnecting, error) with capped exponential backoff reconnection
//   - Detects silent failures with an application-level ping/pong heartbeat
//   - Keeps a declarative subscription set consistent across reconnects
//   - Routes inbound frames by message type to registered handlers
//
// Only conditions affecting the connection itself cause state transitions;
// content-level errors (bad JSON, handler panics) are contained locally.
package channel
