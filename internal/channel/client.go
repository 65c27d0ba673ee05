package channel

import (
	"encoding/json"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Client owns one logical telemetry connection: the socket handle, the
// connection state machine, and the timers that drive it. It composes the
// heartbeat monitor, reconnect backoff, subscription registry, message
// router, and refresh controller.
//
// Connect does not block; the state machine advances via socket events and
// timer firings. External code observes progress through the lifecycle
// listeners — there is nothing to poll.
type Client struct {
	cfg     Config
	logger  *slog.Logger
	backoff *Backoff

	registry *Registry
	router   *Router
	refresh  *Refresh
	hb       *heartbeat

	// Write serialization
	writeMu sync.Mutex

	// State machine. gen identifies the current socket epoch; every
	// teardown bumps it so callbacks from a dead socket are ignored.
	mu        sync.Mutex
	state     State
	conn      *websocket.Conn
	gen       uint64
	attempts  int
	token     string
	reconnect *time.Timer

	// Lifecycle listeners
	stateLs *listenerSet[StateChange]
	openLs  *listenerSet[struct{}]
	closeLs *listenerSet[error]
	errLs   *listenerSet[error]
}

// New creates a telemetry channel client. The client starts Disconnected;
// call Connect to open the channel.
func New(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.applyDefaults()

	c := &Client{
		cfg:      cfg,
		logger:   logger,
		backoff:  NewBackoff(cfg.ReconnectBaseDelay, cfg.ReconnectDecay, cfg.ReconnectMaxDelay),
		registry: NewRegistry(),
		state:    StateDisconnected,
		stateLs:  newListenerSet[StateChange](),
		openLs:   newListenerSet[struct{}](),
		closeLs:  newListenerSet[error](),
		errLs:    newListenerSet[error](),
	}
	c.hb = newHeartbeat(cfg.HeartbeatInterval, cfg.HeartbeatTimeout, logger)
	c.router = newRouter(c.hb.pong, logger)
	c.refresh = newRefresh(cfg, c.sendCommand, logger)
	return c
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Subscriptions returns the desired-subscription registry. Mutating it
// directly does not notify the server; use Subscribe/Unsubscribe for that.
func (c *Client) Subscriptions() *Registry {
	return c.registry
}

// Refresh returns the cadence/precision controller.
func (c *Client) Refresh() *Refresh {
	return c.refresh
}

// Handle registers a handler for one inbound message type.
func (c *Client) Handle(msgType string, h Handler) func() {
	return c.router.Handle(msgType, h)
}

// OnMessage registers a listener for every inbound application message.
func (c *Client) OnMessage(h Handler) func() {
	return c.router.HandleAny(h)
}

// OnStateChange registers a listener for state transitions.
func (c *Client) OnStateChange(fn func(StateChange)) func() {
	return c.stateLs.add(fn)
}

// OnOpen registers a listener invoked when the socket opens.
func (c *Client) OnOpen(fn func()) func() {
	return c.openLs.add(func(struct{}) { fn() })
}

// OnClose registers a listener invoked when the socket closes, with the
// closure error (nil for a locally initiated close).
func (c *Client) OnClose(fn func(error)) func() {
	return c.closeLs.add(fn)
}

// OnError registers a listener for connection-level errors.
func (c *Client) OnError(fn func(error)) func() {
	return c.errLs.add(fn)
}

// RouterStats returns dispatch counters for diagnostics.
func (c *Client) RouterStats() RouterStats {
	return c.router.Stats()
}

// Connect opens the channel using the given auth token. It returns
// immediately; progress is reported via listeners. Calling Connect while
// Connecting or Connected is a no-op. Calling it from Error resets the
// attempt counter and starts over.
func (c *Client) Connect(token string) {
	c.mu.Lock()
	if c.state == StateConnecting || c.state == StateConnected {
		c.mu.Unlock()
		return
	}
	c.cancelReconnectLocked()
	c.token = token
	c.attempts = 0
	change := c.setStateLocked(StateConnecting)
	gen := c.gen
	c.mu.Unlock()

	c.stateLs.emit(change)
	go c.dial(gen)
}

// Disconnect closes the channel with a normal closure, cancels every timer,
// and suppresses auto-reconnection. Safe to call from any state.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.cancelReconnectLocked()
	c.hb.stop()

	conn := c.conn
	c.conn = nil
	c.gen++
	c.attempts = 0

	var change StateChange
	changed := c.state != StateDisconnected
	if changed {
		change = c.setStateLocked(StateDisconnected)
	}
	c.mu.Unlock()

	if conn != nil {
		conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		conn.Close()
		c.closeLs.emit(nil)
	}
	if changed {
		c.stateLs.emit(change)
	}
}

// Subscribe adds (topicID, kind) to the desired set — in any state — and,
// if connected, asks the server to start pushing it. Returns true if the
// desired set changed.
func (c *Client) Subscribe(topicID int, kind string) bool {
	added := c.registry.Add(topicID, kind)
	if added {
		c.sendCommand(command{
			Action:   actionSubscribe,
			AssetIDs: []int{topicID},
			Type:     kind,
		})
	}
	return added
}

// Unsubscribe removes every kind for topicID from the desired set and, if
// connected, asks the server to stop pushing it. Returns true if the
// desired set changed.
func (c *Client) Unsubscribe(topicID int) bool {
	removed := c.registry.Remove(topicID)
	if removed {
		c.sendCommand(command{
			Action:   actionUnsubscribe,
			AssetIDs: []int{topicID},
		})
	}
	return removed
}

// RequestSubscriptions asks the server for its current subscription
// snapshot. The reply arrives as a regular routed message.
func (c *Client) RequestSubscriptions() bool {
	return c.sendCommand(command{Action: actionGetSubscriptions})
}

// Send marshals v and writes it to the socket. Returns false — never an
// error, never a state change — when the channel is not connected or the
// write fails.
func (c *Client) Send(v any) bool {
	data, err := json.Marshal(v)
	if err != nil {
		c.logger.Warn("marshal outbound message", "error", err)
		return false
	}
	return c.send(data)
}

// dial attempts to open the socket for epoch gen.
func (c *Client) dial(gen uint64) {
	c.mu.Lock()
	token := c.token
	c.mu.Unlock()

	target, err := authURL(c.cfg.URL, token)
	if err != nil {
		c.logger.Error("invalid channel url", "url", c.cfg.URL, "error", err)
		c.errLs.emit(err)
		c.connectFailed(gen, err)
		return
	}

	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.HandshakeTimeout}
	conn, _, err := dialer.Dial(target, nil)
	if err != nil {
		c.logger.Warn("connect failed", "error", err)
		c.errLs.emit(err)
		c.connectFailed(gen, err)
		return
	}

	c.mu.Lock()
	if c.gen != gen || c.state != StateConnecting {
		// Disconnect (or a newer epoch) won the race; discard this socket.
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.conn = conn
	c.attempts = 0
	change := c.setStateLocked(StateConnected)
	c.mu.Unlock()

	c.logger.Info("channel connected", "url", c.cfg.URL)
	c.stateLs.emit(change)
	c.openLs.emit(struct{}{})

	c.hb.start(c.sendPing, func() { c.stalled(gen) })
	go c.readLoop(conn, gen)

	c.reconcile()
}

// reconcile replays the entire desired subscription set, one subscribe
// request per distinct kind. Re-subscribing an already-subscribed topic is
// a server-side no-op, so this is idempotent.
func (c *Client) reconcile() {
	for kind, ids := range c.registry.byKind() {
		if !c.sendCommand(command{Action: actionSubscribe, AssetIDs: ids, Type: kind}) {
			c.logger.Warn("subscription replay failed", "kind", kind, "topics", len(ids))
		}
	}
}

// readLoop reads frames for one socket epoch and dispatches them in order.
// Handlers run on this goroutine, so message handling is strictly
// sequential.
func (c *Client) readLoop(conn *websocket.Conn, gen uint64) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				c.peerClosed(gen, err)
			} else {
				c.closeLs.emit(err)
				c.failure(gen, err)
			}
			return
		}
		c.router.dispatch(data)
	}
}

// sendPing sends one heartbeat probe frame.
func (c *Client) sendPing() bool {
	return c.sendCommand(command{Action: actionPing})
}

// stalled handles a heartbeat deadline: force-close the socket with a
// distinguishing close code so the peer sees a stall rather than a clean
// shutdown, then take the reconnect path.
func (c *Client) stalled(gen uint64) {
	c.mu.Lock()
	conn := c.conn
	stale := c.gen != gen || c.state != StateConnected
	c.mu.Unlock()
	if stale {
		return
	}

	c.logger.Warn("heartbeat timeout, forcing reconnect")
	if conn != nil {
		conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(closeCodeStalled, "heartbeat timeout"),
			time.Now().Add(time.Second),
		)
	}
	c.errLs.emit(ErrStalled)
	c.failure(gen, ErrStalled)
}

// connectFailed handles a failed dial attempt.
func (c *Client) connectFailed(gen uint64, err error) {
	c.failure(gen, err)
}

// failure tears down the socket for epoch gen and either schedules a
// reconnect attempt or, with attempts exhausted (or reconnection disabled),
// parks in Error until Connect is called again.
func (c *Client) failure(gen uint64, err error) {
	c.mu.Lock()
	if c.gen != gen || c.state == StateDisconnected || c.state == StateError {
		c.mu.Unlock()
		return
	}

	c.gen++
	newGen := c.gen
	c.hb.stop()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}

	max := c.cfg.MaxReconnectAttempts
	if max == 0 || c.attempts >= max {
		c.cancelReconnectLocked()
		change := c.setStateLocked(StateError)
		attempts := c.attempts
		c.mu.Unlock()

		c.logger.Error("channel failed, retries exhausted",
			"attempts", attempts,
			"error", err,
		)
		c.stateLs.emit(change)
		return
	}

	delay := c.backoff.Interval(c.attempts)
	c.attempts++
	change := c.setStateLocked(StateReconnecting)
	c.reconnect = time.AfterFunc(delay, func() { c.retry(newGen) })
	attempt := c.attempts
	c.mu.Unlock()

	c.logger.Warn("channel lost, reconnecting",
		"attempt", attempt,
		"max_attempts", max,
		"delay", delay,
		"error", err,
	)
	c.stateLs.emit(change)
}

// retry fires when a reconnect delay elapses.
func (c *Client) retry(gen uint64) {
	c.mu.Lock()
	if c.gen != gen || c.state != StateReconnecting {
		c.mu.Unlock()
		return
	}
	c.reconnect = nil
	change := c.setStateLocked(StateConnecting)
	c.mu.Unlock()

	c.stateLs.emit(change)
	c.dial(gen)
}

// peerClosed handles a normal-closure frame from the server: a clean end,
// no reconnection.
func (c *Client) peerClosed(gen uint64, err error) {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	c.gen++
	c.hb.stop()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.attempts = 0
	change := c.setStateLocked(StateDisconnected)
	c.mu.Unlock()

	c.logger.Info("server closed channel")
	c.closeLs.emit(err)
	c.stateLs.emit(change)
}

// sendCommand marshals and sends one control message.
func (c *Client) sendCommand(cmd command) bool {
	data, err := json.Marshal(cmd)
	if err != nil {
		c.logger.Warn("marshal command", "action", cmd.Action, "error", err)
		return false
	}
	return c.send(data)
}

// send writes raw bytes to the socket. Send failures are non-fatal: they
// are logged and reported to the caller, never escalated to a transition.
func (c *Client) send(data []byte) bool {
	c.mu.Lock()
	conn := c.conn
	connected := c.state == StateConnected
	c.mu.Unlock()

	if !connected || conn == nil {
		c.logger.Debug("send skipped, not connected")
		return false
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		c.logger.Warn("send failed", "error", err)
		return false
	}
	return true
}

// setStateLocked transitions the state machine. Caller holds c.mu and must
// emit the returned change after unlocking.
func (c *Client) setStateLocked(to State) StateChange {
	change := StateChange{Previous: c.state, Current: to}
	c.state = to
	c.logger.Debug("state change",
		"from", change.Previous.String(),
		"to", change.Current.String(),
	)
	return change
}

// cancelReconnectLocked stops any pending reconnect timer. Caller holds c.mu.
func (c *Client) cancelReconnectLocked() {
	if c.reconnect != nil {
		c.reconnect.Stop()
		c.reconnect = nil
	}
}

// authURL appends the auth token as a query parameter.
func authURL(raw, token string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if token != "" {
		q := u.Query()
		q.Set("token", token)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}
