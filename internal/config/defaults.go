package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultHeartbeatInterval    = 15 * time.Second
	DefaultHeartbeatTimeout     = 5 * time.Second
	DefaultReconnectBaseDelay   = 1 * time.Second
	DefaultReconnectMaxDelay    = 30 * time.Second
	DefaultReconnectDecay       = 1.5
	DefaultMaxReconnectAttempts = 10
	DefaultWriteTimeout         = 5 * time.Second
	DefaultMinRefreshIntervalMs = 100
	DefaultMaxRefreshIntervalMs = 60000
	DefaultRefreshIntervalMs    = 1000
	DefaultMaxPrecision         = 6
	DefaultPrecision            = 2
	DefaultDBPort               = 5432
	DefaultDBSSLMode            = "prefer"
	DefaultMaxConns             = 10
	DefaultMinConns             = 2
	DefaultBatchSize            = 500
	DefaultFlushInterval        = 1 * time.Second
	DefaultAssetDataBufferSize  = 5000
	DefaultAlertBufferSize      = 1000
	DefaultPredictionBufferSize = 1000
	DefaultHealthPort           = 8080
)

func (c *CollectorConfig) applyDefaults() {
	// Channel defaults
	if c.Channel.HeartbeatInterval == 0 {
		c.Channel.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.Channel.HeartbeatTimeout == 0 {
		c.Channel.HeartbeatTimeout = DefaultHeartbeatTimeout
	}
	if c.Channel.ReconnectBaseDelay == 0 {
		c.Channel.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.Channel.ReconnectMaxDelay == 0 {
		c.Channel.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}
	if c.Channel.ReconnectDecay == 0 {
		c.Channel.ReconnectDecay = DefaultReconnectDecay
	}
	if c.Channel.MaxReconnectAttempts == 0 {
		c.Channel.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if c.Channel.DisableReconnect {
		c.Channel.MaxReconnectAttempts = 0
	}
	if c.Channel.WriteTimeout == 0 {
		c.Channel.WriteTimeout = DefaultWriteTimeout
	}

	// Refresh defaults
	if c.Refresh.MinIntervalMs == 0 {
		c.Refresh.MinIntervalMs = DefaultMinRefreshIntervalMs
	}
	if c.Refresh.MaxIntervalMs == 0 {
		c.Refresh.MaxIntervalMs = DefaultMaxRefreshIntervalMs
	}
	if c.Refresh.IntervalMs == 0 {
		c.Refresh.IntervalMs = DefaultRefreshIntervalMs
	}
	if c.Refresh.MaxPrecision == 0 {
		c.Refresh.MaxPrecision = DefaultMaxPrecision
	}
	if c.Refresh.Precision == 0 {
		c.Refresh.Precision = DefaultPrecision
	}

	// Database defaults
	applyDBDefaults(&c.Database.Timescale)

	// Writers defaults
	if c.Writers.BatchSize == 0 {
		c.Writers.BatchSize = DefaultBatchSize
	}
	if c.Writers.FlushInterval == 0 {
		c.Writers.FlushInterval = DefaultFlushInterval
	}

	// Feed defaults
	if c.Feed.AssetDataBufferSize == 0 {
		c.Feed.AssetDataBufferSize = DefaultAssetDataBufferSize
	}
	if c.Feed.AlertBufferSize == 0 {
		c.Feed.AlertBufferSize = DefaultAlertBufferSize
	}
	if c.Feed.PredictionBufferSize == 0 {
		c.Feed.PredictionBufferSize = DefaultPredictionBufferSize
	}

	// Health defaults
	if c.Health.Port == 0 {
		c.Health.Port = DefaultHealthPort
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
