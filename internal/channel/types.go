package channel

import (
	"errors"
	"time"
)

// ErrStalled is reported to error listeners when a heartbeat probe's
// deadline fires without a matching pong.
var ErrStalled = errors.New("heartbeat timeout (no pong)")

// State is the connection state of a Client. Exactly one value is active
// per Client at any time.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateError
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// StateChange is emitted to state listeners on every transition.
type StateChange struct {
	Previous State
	Current  State
}

// Subscription identifies one server-side push stream: an asset and the
// kind of data wanted for it (e.g. "asset_data", "alert", "prediction").
type Subscription struct {
	TopicID int
	Kind    string
}

// Message kinds the server pushes. Callers may register handlers for any
// type string; these are the ones the welding telemetry server emits today.
const (
	TypeAssetData  = "asset_data"
	TypeAlert      = "alert"
	TypePrediction = "prediction"
	TypePong       = "pong"
)

// closeCodeStalled is sent when the heartbeat deadline fires, so the peer
// can distinguish a stall-triggered closure from a clean shutdown.
const closeCodeStalled = 4000

// command is a client → server control message. Action is required; the
// remaining fields are action-specific.
type command struct {
	Action   string `json:"action"`
	AssetIDs []int  `json:"asset_ids,omitempty"`
	Type     string `json:"type,omitempty"`
	Interval int    `json:"interval,omitempty"`
	Digits   int    `json:"digits,omitempty"`
}

// Control message actions.
const (
	actionSubscribe        = "subscribe"
	actionUnsubscribe      = "unsubscribe"
	actionGetSubscriptions = "get_subscriptions"
	actionPing             = "ping"
	actionSetInterval      = "set_refresh_interval"
	actionSetPrecision     = "set_refresh_precision"
)

// envelope is used to extract the type discriminator from inbound frames.
type envelope struct {
	Type string `json:"type"`
}

// Config configures a telemetry channel Client.
type Config struct {
	URL string // WebSocket URL (e.g. wss://monitor.example.com/ws/telemetry)

	// Heartbeat
	HeartbeatInterval time.Duration // Time between ping probes
	HeartbeatTimeout  time.Duration // Deadline for a matching pong

	// Reconnection
	ReconnectBaseDelay   time.Duration // First retry delay
	ReconnectMaxDelay    time.Duration // Delay cap
	ReconnectDecay       float64       // Multiplier applied per attempt
	MaxReconnectAttempts int           // 0 disables reconnection entirely

	// Refresh bounds (server cadence negotiation)
	MinRefreshIntervalMs int
	MaxRefreshIntervalMs int
	MinPrecisionDigits   int
	MaxPrecisionDigits   int

	HandshakeTimeout time.Duration // Dial timeout
	WriteTimeout     time.Duration // Write deadline for sends
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		HeartbeatInterval:    15 * time.Second,
		HeartbeatTimeout:     5 * time.Second,
		ReconnectBaseDelay:   1 * time.Second,
		ReconnectMaxDelay:    30 * time.Second,
		ReconnectDecay:       1.5,
		MaxReconnectAttempts: 10,
		MinRefreshIntervalMs: 100,
		MaxRefreshIntervalMs: 60000,
		MinPrecisionDigits:   0,
		MaxPrecisionDigits:   6,
		HandshakeTimeout:     10 * time.Second,
		WriteTimeout:         5 * time.Second,
	}
}

// applyDefaults fills zero-valued fields from DefaultConfig. The zero value
// of ReconnectDecay means "unset"; MaxReconnectAttempts zero is meaningful
// (reconnection disabled) and is left alone.
func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = def.HeartbeatInterval
	}
	if c.HeartbeatTimeout == 0 {
		c.HeartbeatTimeout = def.HeartbeatTimeout
	}
	if c.ReconnectBaseDelay == 0 {
		c.ReconnectBaseDelay = def.ReconnectBaseDelay
	}
	if c.ReconnectMaxDelay == 0 {
		c.ReconnectMaxDelay = def.ReconnectMaxDelay
	}
	if c.ReconnectDecay == 0 {
		c.ReconnectDecay = def.ReconnectDecay
	}
	if c.MaxRefreshIntervalMs == 0 {
		c.MinRefreshIntervalMs = def.MinRefreshIntervalMs
		c.MaxRefreshIntervalMs = def.MaxRefreshIntervalMs
	}
	if c.MaxPrecisionDigits == 0 {
		c.MinPrecisionDigits = def.MinPrecisionDigits
		c.MaxPrecisionDigits = def.MaxPrecisionDigits
	}
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = def.HandshakeTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = def.WriteTimeout
	}
}
