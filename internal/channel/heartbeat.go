package channel

import (
	"log/slog"
	"sync"
	"time"
)

// heartbeat probes the connection while the Client is Connected. Each probe
// sends a ping frame and arms a deadline timer; a matching pong cancels the
// timer. If the deadline fires first, onStall is invoked exactly once and
// the monitor stops itself.
type heartbeat struct {
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger

	mu       sync.Mutex
	deadline *time.Timer
	done     chan struct{}
	running  bool
}

func newHeartbeat(interval, timeout time.Duration, logger *slog.Logger) *heartbeat {
	if logger == nil {
		logger = slog.Default()
	}
	return &heartbeat{
		interval: interval,
		timeout:  timeout,
		logger:   logger,
	}
}

// start begins the probe loop. send transmits a ping frame and reports
// success; onStall is called from a timer goroutine when a probe's deadline
// passes without a pong.
func (h *heartbeat) start(send func() bool, onStall func()) {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return
	}
	h.running = true
	h.done = make(chan struct{})
	done := h.done
	h.mu.Unlock()

	go h.probeLoop(done, send, onStall)
}

// stop cancels the probe loop and any pending deadline. Safe to call from
// any state, any number of times. Timers are invalidated synchronously so
// no stale stall can fire after stop returns.
func (h *heartbeat) stop() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.running {
		return
	}
	h.running = false
	close(h.done)
	if h.deadline != nil {
		h.deadline.Stop()
		h.deadline = nil
	}
}

// pong acknowledges the outstanding probe, cancelling its deadline.
func (h *heartbeat) pong() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.deadline != nil {
		h.deadline.Stop()
		h.deadline = nil
	}
}

func (h *heartbeat) probeLoop(done chan struct{}, send func() bool, onStall func()) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			h.probe(send, onStall)
		}
	}
}

// probe sends one ping and arms its deadline. If a previous probe is still
// outstanding its deadline is left to fire; no second probe is sent.
func (h *heartbeat) probe(send func() bool, onStall func()) {
	h.mu.Lock()
	if !h.running || h.deadline != nil {
		h.mu.Unlock()
		return
	}
	h.mu.Unlock()

	if !send() {
		h.logger.Warn("heartbeat ping send failed")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.running {
		return
	}
	h.deadline = time.AfterFunc(h.timeout, func() {
		h.mu.Lock()
		fired := h.running && h.deadline != nil
		h.deadline = nil
		h.mu.Unlock()

		if fired {
			h.logger.Warn("heartbeat stalled, no pong before deadline",
				"timeout", h.timeout,
			)
			h.stop()
			onStall()
		}
	})
}
