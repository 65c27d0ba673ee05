package channel

import (
	"log/slog"
	"sync"
)

// Refresh negotiates data cadence and precision with the server. Values are
// clamped to configured bounds when set, retained locally in any connection
// state, and deliberately NOT replayed after a reconnect — callers that
// need the server-side cadence restored must re-issue the call.
type Refresh struct {
	minIntervalMs int
	maxIntervalMs int
	minDigits     int
	maxDigits     int

	logger *slog.Logger
	send   func(command) bool

	mu         sync.Mutex
	intervalMs int
	digits     int
}

func newRefresh(cfg Config, send func(command) bool, logger *slog.Logger) *Refresh {
	if logger == nil {
		logger = slog.Default()
	}
	return &Refresh{
		minIntervalMs: cfg.MinRefreshIntervalMs,
		maxIntervalMs: cfg.MaxRefreshIntervalMs,
		minDigits:     cfg.MinPrecisionDigits,
		maxDigits:     cfg.MaxPrecisionDigits,
		logger:        logger,
		send:          send,
		intervalMs:    clamp(1000, cfg.MinRefreshIntervalMs, cfg.MaxRefreshIntervalMs),
		digits:        clamp(2, cfg.MinPrecisionDigits, cfg.MaxPrecisionDigits),
	}
}

// SetInterval clamps ms to the configured bounds, stores it, and informs
// the server if currently connected. Returns the clamped value.
func (f *Refresh) SetInterval(ms int) int {
	clamped := clamp(ms, f.minIntervalMs, f.maxIntervalMs)

	f.mu.Lock()
	f.intervalMs = clamped
	f.mu.Unlock()

	if !f.send(command{Action: actionSetInterval, Interval: clamped}) {
		f.logger.Debug("refresh interval retained locally, not connected",
			"interval_ms", clamped,
		)
	}
	return clamped
}

// SetPrecision clamps digits to the configured bounds, stores it, and
// informs the server if currently connected. Returns the clamped value.
func (f *Refresh) SetPrecision(digits int) int {
	clamped := clamp(digits, f.minDigits, f.maxDigits)

	f.mu.Lock()
	f.digits = clamped
	f.mu.Unlock()

	if !f.send(command{Action: actionSetPrecision, Digits: clamped}) {
		f.logger.Debug("refresh precision retained locally, not connected",
			"digits", clamped,
		)
	}
	return clamped
}

// Interval returns the stored cadence in milliseconds.
func (f *Refresh) Interval() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.intervalMs
}

// Precision returns the stored precision in digits.
func (f *Refresh) Precision() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.digits
}

func clamp(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
