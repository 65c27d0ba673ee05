package channel

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// Handler receives the raw bytes of an inbound frame.
type Handler func(data []byte)

// Router parses inbound frames and dispatches them by message type.
// Pong frames are routed to the heartbeat monitor and never reach
// application handlers. Unrecognized types are counted and ignored.
type Router struct {
	logger *slog.Logger
	onPong func()

	mu      sync.Mutex
	nextID  int
	typed   map[string][]routeEntry
	anyMsg  []routeEntry
	stats   RouterStats
}

type routeEntry struct {
	id int
	fn Handler
}

// RouterStats contains dispatch counters.
type RouterStats struct {
	Received    int64
	Dispatched  int64
	ParseErrors int64
	Unknown     int64
	Pongs       int64
}

func newRouter(onPong func(), logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		logger: logger,
		onPong: onPong,
		typed:  make(map[string][]routeEntry),
	}
}

// Handle registers a handler for one message type. Handlers for the same
// type run in registration order. The returned func removes the handler.
func (r *Router) Handle(msgType string, h Handler) func() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	id := r.nextID
	r.typed[msgType] = append(r.typed[msgType], routeEntry{id: id, fn: h})

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.typed[msgType] = removeEntry(r.typed[msgType], id)
	}
}

// HandleAny registers a handler invoked for every non-pong frame, before
// type-specific handlers. The returned func removes the handler.
func (r *Router) HandleAny(h Handler) func() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	id := r.nextID
	r.anyMsg = append(r.anyMsg, routeEntry{id: id, fn: h})

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.anyMsg = removeEntry(r.anyMsg, id)
	}
}

// Stats returns current dispatch counters.
func (r *Router) Stats() RouterStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// dispatch routes one inbound frame. Parse failures are logged and the
// frame is dropped; a misbehaving handler cannot block delivery to others.
func (r *Router) dispatch(data []byte) {
	r.mu.Lock()
	r.stats.Received++
	r.mu.Unlock()

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		r.logger.Warn("dropping malformed frame", "error", err)
		r.mu.Lock()
		r.stats.ParseErrors++
		r.mu.Unlock()
		return
	}

	if env.Type == TypePong {
		r.mu.Lock()
		r.stats.Pongs++
		r.mu.Unlock()
		if r.onPong != nil {
			r.onPong()
		}
		return
	}

	r.mu.Lock()
	anyMsg := append([]routeEntry(nil), r.anyMsg...)
	typed := append([]routeEntry(nil), r.typed[env.Type]...)
	if len(typed) == 0 {
		r.stats.Unknown++
	} else {
		r.stats.Dispatched++
	}
	r.mu.Unlock()

	for _, e := range anyMsg {
		r.invoke(e.fn, env.Type, data)
	}
	for _, e := range typed {
		r.invoke(e.fn, env.Type, data)
	}
}

// invoke runs one handler, containing panics so delivery continues.
func (r *Router) invoke(h Handler, msgType string, data []byte) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("message handler panic",
				"type", msgType,
				"panic", rec,
			)
		}
	}()
	h(data)
}

func removeEntry(entries []routeEntry, id int) []routeEntry {
	for i, e := range entries {
		if e.id == id {
			return append(entries[:i], entries[i+1:]...)
		}
	}
	return entries
}
