package config

import "time"

// CollectorConfig is the root configuration for a collector instance.
type CollectorConfig struct {
	Instance      InstanceConfig       `yaml:"instance"`
	Server        ServerConfig         `yaml:"server"`
	Channel       ChannelConfig        `yaml:"channel"`
	Refresh       RefreshConfig        `yaml:"refresh"`
	Database      DatabaseConfig       `yaml:"database"`
	Writers       WritersConfig        `yaml:"writers"`
	Feed          FeedConfig           `yaml:"feed"`
	Health        HealthConfig         `yaml:"health"`
	Subscriptions []SubscriptionConfig `yaml:"subscriptions"`
}

// InstanceConfig identifies this collector.
type InstanceConfig struct {
	ID   string `yaml:"id"`
	Site string `yaml:"site"`
}

// ServerConfig holds telemetry server settings.
type ServerConfig struct {
	WSURL string `yaml:"ws_url"`
	Token string `yaml:"token"` // Auth token, sent as a query parameter at dial time
}

// ChannelConfig holds telemetry channel settings.
type ChannelConfig struct {
	HeartbeatInterval    time.Duration `yaml:"heartbeat_interval"`
	HeartbeatTimeout     time.Duration `yaml:"heartbeat_timeout"`
	ReconnectBaseDelay   time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay    time.Duration `yaml:"reconnect_max_delay"`
	ReconnectDecay       float64       `yaml:"reconnect_decay"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
	DisableReconnect     bool          `yaml:"disable_reconnect"`
	WriteTimeout         time.Duration `yaml:"write_timeout"`
}

// RefreshConfig holds cadence negotiation bounds and initial values.
type RefreshConfig struct {
	MinIntervalMs int `yaml:"min_interval_ms"`
	MaxIntervalMs int `yaml:"max_interval_ms"`
	IntervalMs    int `yaml:"interval_ms"`
	MinPrecision  int `yaml:"min_precision"`
	MaxPrecision  int `yaml:"max_precision"`
	Precision     int `yaml:"precision"`
}

// DatabaseConfig holds the TimescaleDB connection for the telemetry archive.
type DatabaseConfig struct {
	Timescale DBConfig `yaml:"timescale"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// WritersConfig holds batch writer settings.
type WritersConfig struct {
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// FeedConfig holds feed buffer sizes.
type FeedConfig struct {
	AssetDataBufferSize  int `yaml:"asset_data_buffer_size"`
	AlertBufferSize      int `yaml:"alert_buffer_size"`
	PredictionBufferSize int `yaml:"prediction_buffer_size"`
}

// HealthConfig holds the health endpoint settings.
type HealthConfig struct {
	Port int `yaml:"port"`
}

// SubscriptionConfig seeds the desired subscription set at startup.
type SubscriptionConfig struct {
	AssetIDs []int  `yaml:"asset_ids"`
	Kind     string `yaml:"kind"`
}
